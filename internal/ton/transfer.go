package ton

import (
	"encoding/base64"
	"time"
)

// Message is one outgoing transfer in a TransactionRequest.
type Message struct {
	Address string `json:"address"`
	Amount  string `json:"amount"` // nano-TON
	Payload string `json:"payload,omitempty"`
}

// TransactionRequest is the object handed to the wallet bridge for signing.
type TransactionRequest struct {
	ValidUntil int64     `json:"validUntil"` // unix seconds
	Messages   []Message `json:"messages"`
}

// NewTransfer builds a single-message request valid for ttl from now.
func NewTransfer(now time.Time, ttl time.Duration, to string, amount Nano, payload []byte) (*TransactionRequest, error) {
	if err := ValidateAddress(to); err != nil {
		return nil, err
	}
	if !amount.d.IsPositive() {
		return nil, ErrInvalidAmount
	}
	msg := Message{Address: to, Amount: amount.String()}
	if len(payload) > 0 {
		msg.Payload = base64.StdEncoding.EncodeToString(payload)
	}
	return &TransactionRequest{
		ValidUntil: now.Add(ttl).Unix(),
		Messages:   []Message{msg},
	}, nil
}
