// Package commands defines the sparse CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - chat           Connect to a relay and chat interactively
//   - mailbox put    Leave an opaque message in the relay mailbox
//   - mailbox get    Collect (and remove) a mailbox message by id
//
// # Implementation
//
// The root command resolves configuration (--config file, SPARSE_*
// environment, then flags) and builds the app context before any
// subcommand runs.
package commands
