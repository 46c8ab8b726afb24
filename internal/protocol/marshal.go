package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned for frames that are not a valid envelope or whose
// payload does not match the message type.
var ErrMalformed = errors.New("malformed message")

// Marshal wraps payload in an envelope. A nil payload leaves Data empty.
func Marshal(msgType MessageType, requestID string, payload any, now time.Time) ([]byte, error) {
	env := Envelope{
		Type:      msgType,
		RequestID: requestID,
		Timestamp: now.UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Unmarshal parses an envelope without decoding its payload.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}
	return nil
}
