// Package envelope defines the JSON documents exchanged between services:
// inbound requests carry data plus routing meta, outbound messages carry
// either data or a structured error tagged with the pattern that sent them.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	errspkg "github.com/drblury/ethermesh/internal/runtime/errors"
	"github.com/drblury/ethermesh/internal/runtime/jsoncodec"
)

// Method tags the pattern that produced an outbound envelope.
type Method string

const (
	MethodTell  Method = "tell"
	MethodAsk   Method = "ask"
	MethodSink  Method = "sink"
	MethodError Method = "error"
)

// UnknownChain is assigned to requests that arrive without meta.
const UnknownChain = "unknown"

var emptyObject = json.RawMessage("{}")

// Meta carries routing information alongside the payload.
type Meta struct {
	Subject string `json:"subject,omitempty"`
	Chain   string `json:"chain"`
	Reply   string `json:"reply,omitempty"`
	Method  Method `json:"method,omitempty"`
}

// Envelope is both the inbound request and the outbound message shape. Data
// and Error are mutually exclusive on outbound envelopes.
type Envelope struct {
	Data  json.RawMessage      `json:"data,omitempty"`
	Error *errspkg.RemoteError `json:"error,omitempty"`
	Meta  *Meta                `json:"meta,omitempty"`
}

// New builds an outbound envelope around data.
func New(method Method, subject, chain string, data any) (*Envelope, error) {
	raw, err := jsoncodec.Raw(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload for %s: %w", method, subject, err)
	}
	return &Envelope{
		Data: raw,
		Meta: &Meta{Subject: subject, Chain: chain, Method: method},
	}, nil
}

// NewError builds an "error" envelope around a structured failure.
func NewError(subject, chain string, remote *errspkg.RemoteError) *Envelope {
	return &Envelope{
		Error: remote,
		Meta:  &Meta{Subject: subject, Chain: chain, Method: MethodError},
	}
}

// IsError reports whether the envelope carries a failure.
func (e *Envelope) IsError() bool {
	return e != nil && (e.Error != nil || (e.Meta != nil && e.Meta.Method == MethodError))
}

// Chain returns the causal chain, or UnknownChain when meta is missing.
func (e *Envelope) Chain() string {
	if e == nil || e.Meta == nil || e.Meta.Chain == "" {
		return UnknownChain
	}
	return e.Meta.Chain
}

// Normalize prepares an inbound request for dispatch: absent data becomes an
// empty object, absent meta gets the unknown chain, and the delivery subject
// and reply address are stamped onto meta.
func (e *Envelope) Normalize(subject, reply string) {
	if jsoncodec.IsNull(e.Data) {
		e.Data = emptyObject
	}
	if e.Meta == nil {
		e.Meta = &Meta{Chain: UnknownChain}
	}
	if e.Meta.Chain == "" {
		e.Meta.Chain = UnknownChain
	}
	e.Meta.Subject = subject
	e.Meta.Reply = reply
}

// Encode serializes an envelope.
func Encode(e *Envelope) ([]byte, error) {
	data, err := jsoncodec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses raw bytes into an envelope. An empty body decodes to an empty
// envelope so callers can normalize it.
func Decode(raw []byte) (*Envelope, error) {
	env := &Envelope{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return env, nil
	}
	if err := jsoncodec.Unmarshal(raw, env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Result returns the payload of an outbound envelope, or the remote failure it
// carries. An error envelope without details yields a generic RemoteError.
// Replies always carry meta, so an envelope with neither meta nor data is
// reported as ErrEmptyReply.
func (e *Envelope) Result() (json.RawMessage, error) {
	if e.IsError() {
		if e.Error != nil {
			return nil, e.Error
		}
		return nil, errspkg.NewRemoteError(errors.New(""))
	}
	if e.Meta == nil && len(e.Data) == 0 {
		return nil, errspkg.ErrEmptyReply
	}
	return e.Data, nil
}
