package recorder

import (
	"encoding/binary"
	"fmt"
)

const (
	FormatOggOpus = "audio/ogg;codecs=opus"
	FormatPCM     = "audio/L16"
)

// Encoder turns one slice of mono PCM into container bytes. Consecutive
// outputs, followed by the output of Flush, concatenate into one valid
// stream.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
	// Flush ends the stream and returns whatever the encoder still holds.
	Flush() ([]byte, error)
	Format() string
}

// NewEncoder builds an encoder by short name: "opus" or "pcm".
func NewEncoder(name string, sampleRate int) (Encoder, error) {
	switch name {
	case "opus", "":
		return NewOggOpusEncoder(sampleRate)
	case "pcm":
		return NewPCMEncoder(sampleRate), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

// PCMEncoder emits raw little-endian 16-bit samples.
type PCMEncoder struct {
	sampleRate int
}

func NewPCMEncoder(sampleRate int) *PCMEncoder {
	return &PCMEncoder{sampleRate: sampleRate}
}

func (e *PCMEncoder) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out, nil
}

func (e *PCMEncoder) Flush() ([]byte, error) { return nil, nil }

func (e *PCMEncoder) Format() string {
	return fmt.Sprintf("%s;rate=%d;channels=1", FormatPCM, e.sampleRate)
}
