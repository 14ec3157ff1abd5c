package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

const (
	// SampleRate is the fixed rate used to convert sample counts to durations
	SampleRate = 4000

	// BytesPerSample for signed 16-bit PCM
	BytesPerSample = 2
)

// Clip is a decoded mono PCM-16 recording
type Clip struct {
	Samples    []int16
	SampleRate int
}

// DecodeError reports a payload that could not be turned into samples
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode audio: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode base64-decodes a payload and interprets it as little-endian int16
// samples at SampleRate. A trailing odd byte is dropped. An empty payload
// yields an empty clip.
func Decode(encoded string) (*Clip, error) {
	return DecodeAt(encoded, SampleRate)
}

// DecodeAt is Decode with an explicit sample rate
func DecodeAt(encoded string, sampleRate int) (*Clip, error) {
	if sampleRate <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("invalid sample rate %d", sampleRate)}
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	return &Clip{
		Samples:    PCMFromBytes(raw),
		SampleRate: sampleRate,
	}, nil
}

// PCMFromBytes reinterprets raw bytes as little-endian int16 samples
func PCMFromBytes(raw []byte) []int16 {
	numSamples := len(raw) / BytesPerSample
	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*BytesPerSample:]))
	}
	return samples
}

// PCMToBytes encodes int16 samples as little-endian bytes
func PCMToBytes(samples []int16) []byte {
	raw := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*BytesPerSample:], uint16(s))
	}
	return raw
}

// SampleCount returns the number of samples in the clip
func (c *Clip) SampleCount() int {
	return len(c.Samples)
}

// Duration returns the playback length in seconds
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}
