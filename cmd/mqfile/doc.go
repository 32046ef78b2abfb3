// Package main hosts the mqfile command-line interface.
//
// The binary carries both roles of the file service: `mqfile serve` runs the
// server that streams files over the shared System V message queue, and
// `mqfile fetch` is the interactive client that requests files and writes
// their contents to stdout. Operator commands inspect or remove the queue
// (`queue status`, `queue remove`), render the transfer ledger (`history`),
// and manage the TOML configuration (`config init`, `config show`).
//
// Every subcommand resolves configuration through commandContext before it
// runs unless it carries the skipConfigLoad annotation.
package main
