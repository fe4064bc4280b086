// Package wire defines the envelopes exchanged between clients and the relay
// and their JSON framing.
//
// Every WebSocket text message carries exactly one JSON object whose "type"
// field selects the envelope kind:
//
//	register             client -> relay   name, public_key
//	request_public_key   client -> relay   for_client
//	public_key_response  relay  -> client  client_id, public_key
//	send                 client -> relay   to, message
//	relay                relay  -> client  from, message
//	membership_update    relay  -> all     members
//	registered           relay  -> client  client_id
//	peer_not_found       relay  -> client  client_id
//	delivery_failed      relay  -> client  to, reason
//	error                relay  -> client  code, detail
//
// Public keys travel as arrays of 32 numbers; ciphertext travels as standard
// base64. Decode validates the fields required by the kind and reports
// domain.ErrMalformed or domain.ErrUnknownKind, both of which are protocol
// errors.
package wire
