// Package client is the sparse chat client runtime.
//
// A Client owns one relay connection, the process identity and the session
// keys. The UI layer talks to it through SendPlaintext and receives
// everything else through a domain.EventHandler; it never sees keys or
// ciphertext.
package client
