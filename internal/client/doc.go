// Package client implements the requesting side of mqfile.
//
// A Session validates and submits requests to the server address and counts
// the transfers it expects back. A Reader drains messages addressed to the
// client's pid, writing data chunks to the output and error chunks to the
// error output, and closes one outstanding transfer per final message. A
// Console ties both together: it reads directives from an input stream while
// the Reader runs concurrently, and stops them together on quit, end of
// input, signal, or queue removal.
package client
