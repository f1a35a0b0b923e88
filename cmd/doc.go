// Package cmd implements the command-line interface for vapormail.
//
// This package provides the following commands:
//   - serve: Start the web server for the disposable mailbox UI
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
