package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/leonardotrapani/voicepad/internal/recording"
	"github.com/leonardotrapani/voicepad/internal/transcriber"
)

// OpenAI records the whole utterance and transcribes it with Whisper once
// the session stops. It produces no interim hypotheses.
type OpenAI struct {
	APIKey  string
	BaseURL string
	Model   string
	Mic     Microphone
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Supported() error {
	if o.APIKey == "" {
		return fmt.Errorf("no OpenAI API key")
	}
	return o.Mic.supported()
}

func (o *OpenAI) Create(cfg Config) (Handle, error) {
	if err := o.Supported(); err != nil {
		return nil, err
	}
	mic := o.Mic.withDefaults()
	adapter := transcriber.NewOpenAIAdapter(transcriber.OpenAIConfig{
		APIKey:     o.APIKey,
		BaseURL:    o.BaseURL,
		Model:      o.Model,
		Language:   cfg.Locale,
		SampleRate: mic.Config.SampleRate,
	})
	return &batchHandle{adapter: adapter, mic: mic, cfg: cfg}, nil
}

// batchHandle buffers a session's audio and hands it to a BatchAdapter.
type batchHandle struct {
	adapter  transcriber.BatchAdapter
	mic      Microphone
	cfg      Config
	sessions sessions
}

func (h *batchHandle) Start(ctx context.Context) (<-chan Event, error) {
	return h.sessions.start(ctx, h.run), nil
}

func (h *batchHandle) Stop() error {
	h.sessions.stop()
	return nil
}

func (h *batchHandle) run(ctx context.Context, stop <-chan struct{}, events chan<- Event) {
	src, frames, errs, err := h.mic.open(ctx)
	if err != nil {
		send(ctx, events, ErrorEvent(KindAudioCapture, err))
		return
	}
	defer src.Stop()

	var pcm bytes.Buffer
	activity := recording.NewActivity(h.mic.VoiceThreshold, time.Now())
	started := time.Now()
	ticker := time.NewTicker(captureClock)
	defer ticker.Stop()

capture:
	for {
		select {
		case <-ctx.Done():
			return

		case <-stop:
			break capture

		case frame, ok := <-frames:
			if !ok {
				break capture
			}
			pcm.Write(frame.Data)
			activity.Observe(frame.Data, frame.Timestamp)

		case err, ok := <-errs:
			if ok && err != nil {
				send(ctx, events, ErrorEvent(KindAudioCapture, err))
				return
			}
			errs = nil

		case now := <-ticker.C:
			silence := activity.Silence(now)
			switch {
			case !activity.HeardVoice() && silence >= h.mic.SilenceTimeout:
				send(ctx, events, ErrorEvent(KindNoSpeech, errors.New("no speech detected")))
				return
			case activity.HeardVoice() && !h.cfg.Continuous && silence >= h.mic.SilenceTimeout:
				break capture
			case now.Sub(started) >= h.mic.MaxSession:
				log.Printf("openai: session reached %v, transcribing", h.mic.MaxSession)
				break capture
			}
		}
	}
	src.Stop()

	if !activity.HeardVoice() {
		send(ctx, events, EndEvent())
		return
	}

	text, err := h.adapter.Transcribe(ctx, pcm.Bytes())
	if err != nil {
		if ctx.Err() == nil {
			send(ctx, events, ErrorEvent(networkKind(err), err))
		}
		return
	}
	finish(ctx, events, strings.TrimSpace(text))
}
