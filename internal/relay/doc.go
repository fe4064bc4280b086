// Package relay is the client side of the sparse relay.
//
// WSConn carries wire envelopes over a single WebSocket. MailboxClient
// implements domain.MailboxClient against the relay's HTTP mailbox, which
// stores opaque ciphertext for later pickup.
//
// All calls accept a context for cancellation and deadlines. Non-2xx HTTP
// statuses are returned as errors with the method, path and status text.
package relay
