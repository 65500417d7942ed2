package recording

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// LoadWAV decodes a 16-bit PCM WAV file into mono s16le samples at
// sampleRate.
func LoadWAV(path string, sampleRate int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("decode %s: not a PCM wav file", path)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported wav bits per sample: %d", dec.BitDepth)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}

	mono, err := downmixToMono(pcm, buf.Format.NumChannels)
	if err != nil {
		return nil, err
	}
	out := resamplePCM16(mono, buf.Format.SampleRate, sampleRate)
	if len(out) == 0 {
		return nil, fmt.Errorf("decode %s: empty audio data", path)
	}
	return out, nil
}

func downmixToMono(data []byte, channels int) ([]byte, error) {
	if channels == 1 {
		return data, nil
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	frameSize := 2 * channels
	if len(data)%frameSize != 0 {
		return nil, fmt.Errorf("invalid pcm data length")
	}

	frames := len(data) / frameSize
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for c := range channels {
			idx := (i*channels + c) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(data[idx:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/int32(channels))))
	}
	return out, nil
}

// resamplePCM16 converts mono s16le between rates by linear interpolation.
func resamplePCM16(data []byte, inRate, outRate int) []byte {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(data) < 2 {
		return data
	}

	numIn := len(data) / 2
	numOut := int(math.Round(float64(numIn) * float64(outRate) / float64(inRate)))
	if numOut <= 0 {
		return nil
	}

	out := make([]byte, numOut*2)
	for i := range numOut {
		srcPos := float64(i) * float64(inRate) / float64(outRate)
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s1 := sampleAt(data, srcIdx)
		s2 := sampleAt(data, srcIdx+1)
		v := int16(float64(s1)*(1-frac) + float64(s2)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func sampleAt(data []byte, idx int) int16 {
	last := len(data)/2 - 1
	if idx > last {
		idx = last
	}
	if idx < 0 {
		idx = 0
	}
	return int16(binary.LittleEndian.Uint16(data[idx*2:]))
}

// FileSource replays recorded PCM as a capture source. After the recording
// it keeps delivering silence until stopped, so end-of-speech detection runs
// as it would on a live microphone.
type FileSource struct {
	pcm      []byte
	cfg      Config
	realtime bool

	stopCh chan struct{}
	once   sync.Once
}

// NewFileSource plays pcm in 100ms frames. With realtime the recording is
// paced at its natural speed; otherwise it is delivered as fast as it is read.
func NewFileSource(pcm []byte, cfg Config, realtime bool) *FileSource {
	return &FileSource{pcm: pcm, cfg: cfg, realtime: realtime, stopCh: make(chan struct{})}
}

func (s *FileSource) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if err := validateConfig(s.cfg); err != nil {
		return nil, nil, err
	}

	frameBytes := s.cfg.SampleRate * s.cfg.Channels * 2 / 10
	frameDuration := 100 * time.Millisecond
	frames := make(chan AudioFrame, s.cfg.ChannelBufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errs)

		send := func(data []byte) bool {
			select {
			case frames <- AudioFrame{Data: data, Timestamp: time.Now()}:
				return true
			case <-ctx.Done():
				return false
			case <-s.stopCh:
				return false
			}
		}
		wait := func() bool {
			select {
			case <-time.After(frameDuration):
				return true
			case <-ctx.Done():
				return false
			case <-s.stopCh:
				return false
			}
		}

		for offset := 0; offset < len(s.pcm); offset += frameBytes {
			end := min(offset+frameBytes, len(s.pcm))
			if !send(s.pcm[offset:end]) {
				return
			}
			if s.realtime && !wait() {
				return
			}
		}

		silence := make([]byte, frameBytes)
		for {
			if !wait() || !send(silence) {
				return
			}
		}
	}()

	return frames, errs, nil
}

func (s *FileSource) Stop() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}
