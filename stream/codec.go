package stream

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes events for a wire transport.
type Codec interface {
	Encode(evt *Event) ([]byte, error)
	Decode(data []byte) (*Event, error)
	// Name returns the codec identifier used for format negotiation.
	Name() string
}

// Codec names accepted by CodecByName.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// CodecByName returns the codec for name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecNameJSON, "":
		return JSONCodec{}, nil
	case CodecNameMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("stream: unknown codec %q", name)
	}
}

// JSONCodec encodes events as JSON text.
type JSONCodec struct{}

func (JSONCodec) Encode(evt *Event) ([]byte, error) { return json.Marshal(evt) }

func (JSONCodec) Decode(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes events as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(evt *Event) ([]byte, error) { return msgpack.Marshal(evt) }

func (MsgpackCodec) Decode(data []byte) (*Event, error) {
	var evt Event
	if err := msgpack.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }
