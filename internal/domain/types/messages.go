package types

import "time"

// Member is one entry of a membership snapshot.
type Member struct {
	ID   ClientID    `json:"client_id"`
	Name DisplayName `json:"name"`
}

// DecryptedMessage is what the message service hands to the UI layer.
type DecryptedMessage struct {
	From       ClientID  `json:"from"`
	Plaintext  []byte    `json:"plaintext"`
	ReceivedAt time.Time `json:"received_at"`
}
