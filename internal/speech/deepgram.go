package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/leonardotrapani/voicepad/internal/recording"
	"github.com/leonardotrapani/voicepad/internal/transcriber"
)

// Deepgram streams microphone audio to Deepgram's live API.
type Deepgram struct {
	APIKey   string
	URL      string
	Model    string
	Keywords []string
	Mic      Microphone
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Supported() error {
	if d.APIKey == "" {
		return fmt.Errorf("no Deepgram API key")
	}
	return d.Mic.supported()
}

func (d *Deepgram) Create(cfg Config) (Handle, error) {
	if err := d.Supported(); err != nil {
		return nil, err
	}
	return &deepgramHandle{d: *d, mic: d.Mic.withDefaults(), cfg: cfg}, nil
}

type deepgramHandle struct {
	d        Deepgram
	mic      Microphone
	cfg      Config
	sessions sessions
}

func (h *deepgramHandle) Start(ctx context.Context) (<-chan Event, error) {
	return h.sessions.start(ctx, h.run), nil
}

func (h *deepgramHandle) Stop() error {
	h.sessions.stop()
	return nil
}

// utterance joins finalized segments with the current interim hypothesis.
type utterance struct {
	finals  []string
	interim string
}

func (u *utterance) apply(r transcriber.TranscriptionResult) {
	if r.IsFinal {
		if t := strings.TrimSpace(r.Text); t != "" {
			u.finals = append(u.finals, t)
		}
		u.interim = ""
		return
	}
	u.interim = strings.TrimSpace(r.Text)
}

func (u *utterance) text() string {
	parts := u.finals
	if u.interim != "" {
		parts = append(parts[:len(parts):len(parts)], u.interim)
	}
	return strings.Join(parts, " ")
}

func (h *deepgramHandle) run(ctx context.Context, stop <-chan struct{}, events chan<- Event) {
	src, frames, errs, err := h.mic.open(ctx)
	if err != nil {
		send(ctx, events, ErrorEvent(KindAudioCapture, err))
		return
	}
	defer src.Stop()

	adapter := transcriber.NewDeepgramAdapter(transcriber.DeepgramConfig{
		URL:         h.d.URL,
		APIKey:      h.d.APIKey,
		Model:       h.d.Model,
		Language:    h.cfg.Locale,
		SampleRate:  h.mic.Config.SampleRate,
		Keywords:    h.d.Keywords,
		Endpointing: time.Second,
	})
	if err := adapter.Start(ctx, ""); err != nil {
		if ctx.Err() == nil {
			send(ctx, events, ErrorEvent(networkKind(err), err))
		}
		return
	}
	defer adapter.Close()

	activity := recording.NewActivity(h.mic.VoiceThreshold, time.Now())
	started := time.Now()
	ticker := time.NewTicker(captureClock)
	defer ticker.Stop()

	var utt utterance
	last := ""

	for {
		select {
		case <-ctx.Done():
			return

		case <-stop:
			h.drain(ctx, src, adapter, &utt)
			finish(ctx, events, utt.text())
			return

		case frame, ok := <-frames:
			if !ok {
				h.drain(ctx, src, adapter, &utt)
				finish(ctx, events, utt.text())
				return
			}
			activity.Observe(frame.Data, frame.Timestamp)
			if err := adapter.SendChunk(frame.Data); err != nil {
				if ctx.Err() == nil {
					send(ctx, events, ErrorEvent(KindNetwork, err))
				}
				return
			}

		case err, ok := <-errs:
			if ok && err != nil {
				send(ctx, events, ErrorEvent(KindAudioCapture, err))
				return
			}
			errs = nil

		case r, ok := <-adapter.Results():
			if !ok {
				finish(ctx, events, utt.text())
				return
			}
			if r.Error != nil {
				send(ctx, events, ErrorEvent(networkKind(r.Error), r.Error))
				return
			}
			utt.apply(r)
			text := utt.text()
			if r.SpeechFinal && !h.cfg.Continuous && text != "" {
				src.Stop()
				finish(ctx, events, text)
				return
			}
			if h.cfg.InterimResults && text != last {
				last = text
				if !send(ctx, events, ResultEvent(text, false)) {
					return
				}
			}

		case now := <-ticker.C:
			silence := activity.Silence(now)
			switch {
			case utt.text() == "" && silence >= h.mic.SilenceTimeout:
				log.Printf("deepgram: no speech for %v", silence)
				send(ctx, events, ErrorEvent(KindNoSpeech, errors.New("no speech detected")))
				return
			case now.Sub(started) >= h.mic.MaxSession,
				!h.cfg.Continuous && utt.text() != "" && silence >= h.mic.SilenceTimeout:
				h.drain(ctx, src, adapter, &utt)
				finish(ctx, events, utt.text())
				return
			}
		}
	}
}

// drain stops capture, asks Deepgram for its last result and folds in
// whatever arrives before the stream closes.
func (h *deepgramHandle) drain(ctx context.Context, src recording.Source, adapter *transcriber.DeepgramAdapter, utt *utterance) {
	src.Stop()

	fctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := adapter.Finalize(fctx); err != nil {
		log.Printf("deepgram: finalize: %v", err)
	}

	for {
		select {
		case r, ok := <-adapter.Results():
			if !ok || r.Error != nil {
				return
			}
			utt.apply(r)
		case <-fctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
			return
		}
	}
}

func networkKind(err error) string {
	if transcriber.IsUnauthorized(err) {
		return KindServiceNotAllowed
	}
	return KindNetwork
}
