package speech

import (
	"context"
	"time"

	"github.com/leonardotrapani/voicepad/internal/recording"
)

const (
	DefaultSilenceTimeout = 5 * time.Second
	DefaultMaxSession     = 60 * time.Second
	DefaultVoiceThreshold = 0.02
)

// Microphone describes live capture for the recording backends.
type Microphone struct {
	Config recording.Config
	// VoiceThreshold is the RMS level counted as speech.
	VoiceThreshold float64
	// SilenceTimeout ends a session: with no-speech when nothing was heard,
	// otherwise as the end of the utterance.
	SilenceTimeout time.Duration
	MaxSession     time.Duration

	// NewSource replaces pw-record, mostly in tests.
	NewSource func(recording.Config) recording.Source
}

func (m Microphone) withDefaults() Microphone {
	if m.Config.SampleRate == 0 {
		m.Config = recording.DefaultConfig()
	}
	if m.VoiceThreshold <= 0 {
		m.VoiceThreshold = DefaultVoiceThreshold
	}
	if m.SilenceTimeout <= 0 {
		m.SilenceTimeout = DefaultSilenceTimeout
	}
	if m.MaxSession <= 0 {
		m.MaxSession = DefaultMaxSession
	}
	return m
}

func (m Microphone) supported() error {
	if m.NewSource != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return recording.CheckPipeWireAvailable(ctx)
}

func (m Microphone) open(ctx context.Context) (recording.Source, <-chan recording.AudioFrame, <-chan error, error) {
	var src recording.Source
	if m.NewSource != nil {
		src = m.NewSource(m.Config)
	} else {
		src = recording.NewRecorder(m.Config)
	}
	frames, errs, err := src.Start(ctx)
	if err != nil {
		return nil, nil, nil, NewEngineError(KindAudioCapture, err)
	}
	return src, frames, errs, nil
}

// captureClock fires the periodic silence and duration checks.
const captureClock = 100 * time.Millisecond
