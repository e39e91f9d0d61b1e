// Package wavfile reads and writes the 16-bit PCM WAV files exchanged with
// the converter and the cloning model.
package wavfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalid is returned when a file does not carry a readable WAV header.
var ErrInvalid = errors.New("not a valid wav file")

// Format describes the stream parameters of a WAV file.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Inspect decodes the header of the WAV file at path.
func Inspect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads the header of a WAV stream.
func Decode(r io.ReadSeeker) (Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Format{}, ErrInvalid
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return Format{}, fmt.Errorf("read wav info: %w", err)
	}
	format := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if d, err := dec.Duration(); err == nil {
		format.Duration = d
	}
	return format, nil
}

// WritePCM16 encodes little-endian signed 16-bit PCM into w as a WAV file.
func WritePCM16(w io.WriteSeeker, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return WriteSamples(w, samples, sampleRate, channels)
}

// WriteSamples encodes integer samples into w as a 16-bit WAV file.
func WriteSamples(w io.WriteSeeker, samples []int, sampleRate, channels int) error {
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteSilence creates path holding d of silence.
func WriteSilence(path string, d time.Duration, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n := int(d.Seconds()*float64(sampleRate)) * channels
	if err := WriteSamples(f, make([]int, n), sampleRate, channels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
