//go:build !unix

package server

func processExists(pid int) bool {
	return pid > 0
}
