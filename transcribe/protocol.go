package transcribe

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeAudioChunk          MessageType = "audio_chunk"
	TypeAudioEnd            MessageType = "audio_end"
	TypePing                MessageType = "ping"
	TypeChunkReceived       MessageType = "chunk_received"
	TypeTranscriptionResult MessageType = "transcription_result"
	TypeError               MessageType = "error"
	TypePong                MessageType = "pong"
)

// ClientMessage is a frame sent to the transcription service.
type ClientMessage struct {
	Type MessageType `json:"type"`
	Data string      `json:"data,omitempty"`
}

func AudioChunk(payload []byte) ClientMessage {
	return ClientMessage{
		Type: TypeAudioChunk,
		Data: base64.StdEncoding.EncodeToString(payload),
	}
}

func AudioEnd() ClientMessage { return ClientMessage{Type: TypeAudioEnd} }

func Ping() ClientMessage { return ClientMessage{Type: TypePing} }

// ServerMessage is a frame received from the transcription service. Only
// the fields relevant to Type are set.
type ServerMessage struct {
	Type       MessageType `json:"type"`
	BufferSize int         `json:"buffer_size,omitempty"`
	Text       string      `json:"text,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// Terminal reports whether the message ends a processing phase.
func (m ServerMessage) Terminal() bool {
	return m.Type == TypeTranscriptionResult || m.Type == TypeError
}

func ParseServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("failed to decode server message: %w", err)
	}
	if msg.Type == "" {
		return ServerMessage{}, fmt.Errorf("server message has no type: %s", data)
	}
	return msg, nil
}
