package otoaudio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is the output format of the audio device.
var DefaultFormat = Format{SampleRate: 44100, Channels: 2}

var ErrInvalidWAV = errors.ValidationError("invalid wav data").Build()

// parseWAV extracts the PCM payload of a 16-bit PCM WAV file.
func parseWAV(data []byte) (Format, []byte, error) {
	r := bytes.NewReader(data)

	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Format{}, nil, ErrInvalidWAV.Wrap(err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, nil, ErrInvalidWAV.WithContext("reason", "missing RIFF/WAVE header")
	}

	var (
		format    Format
		bitDepth  uint16
		audioFmt  uint16
		sawFormat bool
	)
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return Format{}, nil, ErrInvalidWAV.WithContext("reason", "no data chunk")
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var fmtChunk struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if chunk.Size < 16 {
				return Format{}, nil, ErrInvalidWAV.WithContext("reason", "short fmt chunk")
			}
			if err := binary.Read(r, binary.LittleEndian, &fmtChunk); err != nil {
				return Format{}, nil, ErrInvalidWAV.Wrap(err)
			}
			if _, err := r.Seek(int64(chunk.Size-16), io.SeekCurrent); err != nil {
				return Format{}, nil, ErrInvalidWAV.Wrap(err)
			}
			format = Format{SampleRate: int(fmtChunk.SampleRate), Channels: int(fmtChunk.Channels)}
			bitDepth = fmtChunk.BitsPerSample
			audioFmt = fmtChunk.AudioFormat
			sawFormat = true
		case "data":
			if !sawFormat {
				return Format{}, nil, ErrInvalidWAV.WithContext("reason", "data before fmt")
			}
			if audioFmt != 1 || bitDepth != 16 {
				return Format{}, nil, ErrInvalidWAV.WithContext("reason", "only 16-bit PCM is supported")
			}
			size := min(int(chunk.Size), r.Len())
			pcm := make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return Format{}, nil, ErrInvalidWAV.Wrap(err)
			}
			return format, pcm, nil
		default:
			// RIFF chunks are padded to even sizes.
			skip := int64(chunk.Size) + int64(chunk.Size&1)
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return Format{}, nil, ErrInvalidWAV.Wrap(err)
			}
		}
	}
}

// encodeWAV wraps PCM in a minimal WAV container.
func encodeWAV(f Format, pcm []byte) []byte {
	var buf bytes.Buffer
	blockAlign := uint16(f.Channels * 2)
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{
		uint32(16), uint16(1), uint16(f.Channels), uint32(f.SampleRate),
		uint32(f.SampleRate) * uint32(blockAlign), blockAlign, uint16(16),
	} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// alarmTone synthesizes one second of a beeping two-tone alarm: four 125ms beeps
// alternating 880Hz and 1320Hz, each followed by 125ms of silence.
func alarmTone(f Format) []byte {
	samples := f.SampleRate
	pcm := make([]byte, 0, samples*f.Channels*2)
	beep := f.SampleRate / 8
	for i := range samples {
		slot := i / beep
		var v float64
		if slot%2 == 0 {
			freq := 880.0
			if slot%4 == 2 {
				freq = 1320.0
			}
			v = 0.4 * math.Sin(2*math.Pi*freq*float64(i)/float64(f.SampleRate))
		}
		s := int16(v * math.MaxInt16)
		for range f.Channels {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
		}
	}
	return pcm
}
