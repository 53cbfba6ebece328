package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the serialized form of a submitted task as it travels through
// the broker.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Kind      Kind            `json:"kind"`
	Params    json.RawMessage `json:"params"`
	NoRetry   bool            `json:"no_retry,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEnvelope wraps p in an envelope with a fresh task ID.
func NewEnvelope(p Params) (*Envelope, error) {
	if p == nil {
		return nil, errors.New("task params are nil")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s params: %w", p.Kind(), err)
	}

	env := &Envelope{
		ID:        uuid.New(),
		Kind:      p.Kind(),
		Params:    payload,
		CreatedAt: time.Now().UTC(),
	}
	if opt, ok := p.(retryOptOut); ok {
		env.NoRetry = opt.retryDisabled()
	}
	return env, nil
}

// Decode returns the typed params carried by the envelope.
func (e *Envelope) Decode() (Params, error) {
	return DecodeParams(e.Kind, e.Params)
}

// Queue returns the queue the envelope is routed to.
func (e *Envelope) Queue() string {
	return e.Kind.Queue()
}

// Marshal encodes the envelope for the wire.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes an envelope received from the wire.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode task envelope: %w", err)
	}
	if env.ID == uuid.Nil {
		return nil, errors.New("task envelope has no id")
	}
	return &env, nil
}
