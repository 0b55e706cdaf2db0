package graph

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// Message is a superstep message addressed to a vertex. The payload is opaque
// to the communication layer; only the application's compute function
// interprets it.
type Message struct {
	To      VertexID
	Payload []byte
}

//Marshal - json encoding of Message
func (m *Message) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(m); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (m *Message) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(m); err != nil {
		return err
	}

	return nil
}

// MarshalMessages encodes a batch of messages. It is used by the disk-spill
// message store, which persists whole batches under one key.
func MarshalMessages(msgs []Message) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(msgs); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalMessages decodes a batch of messages encoded by MarshalMessages.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var msgs []Message

	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(&msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}
