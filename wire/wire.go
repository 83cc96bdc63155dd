package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Operation codes recognised by the hub. Any other (or absent) op produces
// only a passive message notification, no routing action.
const (
	// OpAnnounce broadcasts the envelope's data to every registered client
	// matching the receiver filter, excluding the sender.
	OpAnnounce = "annc"

	// OpTest is a diagnostic probe. The hub logs it and treats it like any
	// unrecognised op; it never triggers a broadcast.
	OpTest = "test"
)

// ErrNotObject is returned when an outbound payload does not serialize to a
// JSON object. The protocol requires every data payload to be an object, not
// a primitive or an array.
var ErrNotObject = errors.New("wire: payload must serialize to a JSON object")

// ReceiverFilter selects broadcast recipients by inclusion. A nil field
// imposes no constraint on that dimension; a non-nil field admits only
// clients whose value is a member of the slice.
type ReceiverFilter struct {
	ClientID []string `json:"clientid"`
	ShardID  []string `json:"shardid,omitempty"`
}

// Matches reports whether a client with the given id and shard passes the
// filter. Sender self-exclusion is not the filter's concern; callers exclude
// the sender by connection id separately.
func (f *ReceiverFilter) Matches(id, shard string) bool {
	if f == nil {
		return true
	}
	if f.ClientID != nil && !contains(f.ClientID, id) {
		return false
	}
	if f.ShardID != nil && !contains(f.ShardID, shard) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Envelope is the top-level wire message. Data holds the raw JSON payload;
// it is not interpreted by the hub beyond the object-shape requirement on
// outbound sends.
type Envelope struct {
	Op             string          `json:"op,omitempty"`
	ReceiverFilter *ReceiverFilter `json:"recieverFilter,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Unwrap removes one level of string double-encoding from a JSON frame.
// Some senders encode twice, producing a JSON string whose contents are the
// actual JSON value; Unwrap returns the inner bytes in that case and the
// input unchanged otherwise.
func Unwrap(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("wire: unwrap double-encoded frame: %w", err)
		}
		return []byte(inner), nil
	}
	return data, nil
}

// DecodeEnvelope parses a text frame into an Envelope, unwrapping one level
// of double-encoding first so both encodings yield the same logical
// envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	data, err := Unwrap(data)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return &env, nil
}

// IsObject reports whether raw is a JSON object. Data payloads must be
// objects on the wire; primitives and arrays are rejected.
func IsObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// ObjectPayload marshals v and verifies the result is a JSON object.
// It is the validation gate for every outbound data payload.
func ObjectPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, ErrNotObject
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal payload: %w", err)
	}
	if !IsObject(raw) {
		return nil, ErrNotObject
	}
	return raw, nil
}
