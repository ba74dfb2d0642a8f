package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/randutil"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

const (
	OpusFrameDuration = 20 * time.Millisecond

	// RTP timestamps for Opus always run on a 48 kHz clock.
	opusClockRate = 48000
	maxOpusPacket = 4000
)

var errStreamFinished = errors.New("ogg stream already finished")

// OggOpusEncoder produces one continuous Ogg/Opus stream split across
// chunks. The first chunk carries the identification and comment headers.
// The newest page is always held back so Flush can mark it end-of-stream.
type OggOpusEncoder struct {
	sampleRate int
	frameSize  int

	enc    *opus.Encoder
	encode func(pcm []int16, data []byte) (int, error)
	writer *oggwriter.OggWriter
	pages  pageBuffer
	done   bool

	ssrc      uint32
	sequence  uint16
	timestamp uint32
	packet    []byte
}

func NewOggOpusEncoder(sampleRate int) (*OggOpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	e := &OggOpusEncoder{
		sampleRate: sampleRate,
		frameSize:  int(OpusFrameDuration.Seconds() * float64(sampleRate)),
		enc:        enc,
		encode:     enc.Encode,
		ssrc:       randutil.NewMathRandomGenerator().Uint32(),
		packet:     make([]byte, maxOpusPacket),
	}

	writer, err := oggwriter.NewWith(&e.pages, uint32(sampleRate), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create OggWriter: %w", err)
	}
	e.writer = writer
	return e, nil
}

func (e *OggOpusEncoder) Format() string { return FormatOggOpus }

// Encode consumes pcm in 20 ms frames. A trailing partial frame is padded
// with silence. If any frame fails, every page written for this slice is
// discarded.
func (e *OggOpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if e.done {
		return nil, errStreamFinished
	}

	mark := len(e.pages)
	for off := 0; off < len(pcm); off += e.frameSize {
		frame := pcm[off:min(off+e.frameSize, len(pcm))]
		if len(frame) < e.frameSize {
			padded := make([]int16, e.frameSize)
			copy(padded, frame)
			frame = padded
		}

		n, err := e.encode(frame, e.packet)
		if err == nil {
			err = e.writeRTPPacket(e.packet[:n])
		}
		if err != nil {
			e.pages = e.pages[:mark]
			return nil, fmt.Errorf("opus encode: %w", err)
		}
	}

	if len(e.pages) < 2 {
		return nil, nil
	}
	held := e.pages[len(e.pages)-1]
	out := e.pages[:len(e.pages)-1].bytes()
	e.pages = append(e.pages[:0], held)
	return out, nil
}

// Flush marks the held-back page as the end of the stream and returns it.
// Later calls return nothing.
func (e *OggOpusEncoder) Flush() ([]byte, error) {
	if e.done {
		return nil, nil
	}
	e.done = true

	if err := e.writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close OggWriter: %w", err)
	}
	if len(e.pages) == 0 {
		return nil, nil
	}
	markEndOfStream(e.pages[len(e.pages)-1])
	out := e.pages.bytes()
	e.pages = nil
	return out, nil
}

func (e *OggOpusEncoder) writeRTPPacket(payload []byte) error {
	e.sequence++
	e.timestamp += uint32(OpusFrameDuration.Seconds() * opusClockRate)

	packet := createRTPPacket(e.sequence, e.timestamp, e.ssrc, payload)
	if err := e.writer.WriteRTP(packet); err != nil {
		return fmt.Errorf("error writing RTP packet: %w", err)
	}
	return nil
}

func createRTPPacket(sequenceNumber uint16, timestamp uint32, ssrc uint32, payload []byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    0x78,
			SequenceNumber: sequenceNumber,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: append([]byte(nil), payload...),
	}
}
