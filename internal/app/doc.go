// Package app wires application dependencies for the sparse and relay
// commands.
//
// It resolves configuration (file, environment, then flags), builds the
// logger and exposes constructors for the chat client, the mailbox client
// and the relay server so commands stay thin.
package app
