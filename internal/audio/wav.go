// Package audio wraps synthesized speech in the WAV container the tutor
// hands to clients.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zaf/g711"
)

// DefaultSampleRate is used when a caller passes a non-positive rate.
const DefaultSampleRate = 24000

const (
	pcmFormat     = 1
	bitsPerSample = 16
	headerSize    = 44
)

var ErrNotPCM16WAV = errors.New("not a 16-bit PCM WAV payload")

// wavHeader is the canonical 44-byte RIFF/WAVE header for mono PCM16.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func newHeader(dataSize, sampleRate int) wavHeader {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	const channels = 1
	return wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   pcmFormat,
		Channels:      channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if err := binary.Write(out, binary.LittleEndian, newHeader(len(pcm), sampleRate)); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// WriteFile stores an already encoded WAV payload at path.
func WriteFile(path string, wav []byte) error {
	if _, err := Inspect(wav); err != nil {
		return err
	}
	return os.WriteFile(path, wav, 0o644)
}

// Info describes a validated WAV payload.
type Info struct {
	SampleRate int
	Channels   int
	DataBytes  int
}

// Inspect checks that b starts with a PCM16 RIFF/WAVE header and returns its
// parameters. Streamed WAV responses often carry a zero or oversized data
// length, so DataBytes is taken from the payload itself.
func Inspect(b []byte) (Info, error) {
	if len(b) < headerSize {
		return Info{}, ErrNotPCM16WAV
	}
	var h wavHeader
	if err := binary.Read(bytes.NewReader(b[:headerSize]), binary.LittleEndian, &h); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotPCM16WAV, err)
	}
	if string(h.RIFF[:]) != "RIFF" || string(h.WAVE[:]) != "WAVE" || string(h.Fmt[:]) != "fmt " {
		return Info{}, ErrNotPCM16WAV
	}
	if h.AudioFormat != pcmFormat || h.BitsPerSample != bitsPerSample {
		return Info{}, fmt.Errorf("%w: format=%d bits=%d", ErrNotPCM16WAV, h.AudioFormat, h.BitsPerSample)
	}
	return Info{
		SampleRate: int(h.SampleRate),
		Channels:   int(h.Channels),
		DataBytes:  len(b) - headerSize,
	}, nil
}

// MulawToWAV decodes G.711 mu-law samples to PCM16LE and wraps them in a WAV
// container.
func MulawToWAV(ulaw []byte, sampleRate int) ([]byte, error) {
	if len(ulaw) == 0 {
		return nil, errors.New("empty mu-law payload")
	}
	return EncodeWAVPCM16LE(g711.DecodeUlaw(ulaw), sampleRate)
}
