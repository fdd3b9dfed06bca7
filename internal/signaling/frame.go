// Package signaling implements the relay negotiation socket: the JSON frames
// exchanged with a relay and a websocket client that carries them.
package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FrameType is the "type" discriminator of an inbound frame.
type FrameType string

const (
	FrameMessage FrameType = "message"
	FrameError   FrameType = "error"
	FrameUpdate  FrameType = "update"
)

func (t FrameType) valid() bool {
	switch t {
	case FrameMessage, FrameError, FrameUpdate:
		return true
	default:
		return false
	}
}

// Verification is the relay's answer to an open query: the relay's public key,
// the address assigned to the client and the endpoint to reach the relay on.
type Verification struct {
	ServerPublicKey string `json:"server_public_key"`
	ClientAddress   string `json:"client_address"`
	Endpoint        string `json:"endpoint"`
}

// Frame is an inbound frame. Exactly one of Verification and Text is set: an
// object payload decodes into Verification, a string payload into Text.
type Frame struct {
	Type         FrameType
	Verification *Verification
	Text         string
}

// IsVerification reports whether f carries a verification payload.
func (f Frame) IsVerification() bool {
	return f.Type == FrameMessage && f.Verification != nil
}

type wireFrame struct {
	Type    FrameType       `json:"type"`
	Message json.RawMessage `json:"message"`
}

// ErrMalformedFrame is wrapped by DecodeFrame for every frame it rejects.
var ErrMalformedFrame = errors.New("malformed frame")

// DecodeFrame decodes an inbound frame. Unknown types, missing payloads and
// verification objects without a server key or endpoint are rejected.
func DecodeFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if !w.Type.valid() {
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, w.Type)
	}

	payload := bytes.TrimSpace(w.Message)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return Frame{}, fmt.Errorf("%w: %s frame has no message", ErrMalformedFrame, w.Type)
	}

	f := Frame{Type: w.Type}
	switch payload[0] {
	case '"':
		if err := json.Unmarshal(payload, &f.Text); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	case '{':
		var v Verification
		if err := json.Unmarshal(payload, &v); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		v.ServerPublicKey = strings.TrimSpace(v.ServerPublicKey)
		v.Endpoint = strings.TrimSpace(v.Endpoint)
		v.ClientAddress = strings.TrimSpace(v.ClientAddress)
		if v.ServerPublicKey == "" || v.Endpoint == "" {
			return Frame{}, fmt.Errorf("%w: verification needs server_public_key and endpoint", ErrMalformedFrame)
		}
		f.Verification = &v
	default:
		return Frame{}, fmt.Errorf("%w: message must be a string or an object", ErrMalformedFrame)
	}
	return f, nil
}

// EncodeFrame is the inverse of DecodeFrame.
func EncodeFrame(f Frame) ([]byte, error) {
	if !f.Type.valid() {
		return nil, fmt.Errorf("encode frame: unknown type %q", f.Type)
	}
	var (
		payload []byte
		err     error
	)
	if f.Verification != nil {
		payload, err = json.Marshal(f.Verification)
	} else {
		payload, err = json.Marshal(f.Text)
	}
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return json.Marshal(wireFrame{Type: f.Type, Message: payload})
}

// QueryType is the kind of control frame sent to the relay.
type QueryType string

const (
	QueryOpen  QueryType = "open"
	QueryClose QueryType = "close"
)

// Query is an outbound control frame.
type Query struct {
	QueryType QueryType `json:"query_type"`
}
