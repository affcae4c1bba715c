package message

import (
	"encoding/binary"
	"encoding/json"
)

// headerSize is the length of the binary frame header: a uint32 ID followed
// by a single type byte.
const headerSize = 5

type envelope struct {
	ID   uint32      `json:"id"`
	Type Type        `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Serialize encodes a message for the wire. Stream chunk and stream end
// messages are encoded as binary frames (binary is true), all other types as
// JSON text.
func Serialize(msg *Message) (data []byte, binary bool, err error) {
	if msg.Type.Binary() {
		return encodeFrame(msg), true, nil
	}
	payload, err := msg.data()
	if err != nil {
		return nil, false, err
	}
	data, err = json.Marshal(envelope{
		ID:   msg.ID,
		Type: msg.Type,
		Data: payload,
	})
	return data, false, err
}

func encodeFrame(msg *Message) []byte {
	size := headerSize
	if msg.Type == TypeStreamResponseChunk {
		size += len(msg.Chunk)
	}
	frame := make([]byte, size)
	binary.LittleEndian.PutUint32(frame, msg.ID)
	frame[4] = byte(msg.Type)
	if msg.Type == TypeStreamResponseChunk {
		copy(frame[headerSize:], msg.Chunk)
	}
	return frame
}
