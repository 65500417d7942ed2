package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultDeepgramURL = "wss://api.deepgram.com/v1/listen"

var defaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

type DeepgramConfig struct {
	URL        string // defaults to DefaultDeepgramURL
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Keywords   []string
	// Endpointing is the silence Deepgram waits for before speech_final.
	Endpointing time.Duration
}

// DeepgramAdapter streams linear16 PCM to Deepgram's live endpoint.
type DeepgramAdapter struct {
	cfg       DeepgramConfig
	resultsCh chan TranscriptionResult

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closing bool // CloseStream sent; a server close is expected

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	maxRetries  int
	retryDelays []time.Duration

	finalizeDone chan struct{}
}

type deepgramCloseStream struct {
	Type string `json:"type"`
}

// deepgramWSResponse covers every server message type; Type says which
// fields are set.
type deepgramWSResponse struct {
	Type        string            `json:"type"`
	Channel     *deepgramChannel  `json:"channel,omitempty"`
	Metadata    *deepgramMetadata `json:"metadata,omitempty"`
	Error       *deepgramError    `json:"error,omitempty"`
	Duration    float64           `json:"duration,omitempty"`
	Start       float64           `json:"start,omitempty"`
	IsFinal     bool              `json:"is_final,omitempty"`
	SpeechFinal bool              `json:"speech_final,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramMetadata struct {
	RequestID string `json:"request_id"`
	ModelInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"model_info"`
}

type deepgramError struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

func NewDeepgramAdapter(cfg DeepgramConfig) *DeepgramAdapter {
	if cfg.URL == "" {
		cfg.URL = DefaultDeepgramURL
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &DeepgramAdapter{
		cfg:          cfg,
		resultsCh:    make(chan TranscriptionResult, 100),
		maxRetries:   len(defaultRetryDelays),
		retryDelays:  defaultRetryDelays,
		finalizeDone: make(chan struct{}, 1),
	}
}

func (a *DeepgramAdapter) Start(ctx context.Context, lang string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("adapter already started")
	}
	if lang != "" {
		a.cfg.Language = lang
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	conn, err := a.dial()
	if err != nil {
		a.cancel()
		return err
	}
	a.conn = conn
	a.started = true

	a.wg.Add(1)
	go a.readLoop()

	log.Printf("deepgram: connected, model=%s, language=%s", a.cfg.Model, a.cfg.Language)
	return nil
}

func (a *DeepgramAdapter) dial() (*websocket.Conn, error) {
	wsURL, err := a.buildURL()
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+a.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(a.ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w", statusError("deepgram", resp.StatusCode))
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

func (a *DeepgramAdapter) retryDelay(attempt int) time.Duration {
	if attempt < len(a.retryDelays) {
		return a.retryDelays[attempt]
	}
	return a.retryDelays[len(a.retryDelays)-1]
}

// redial replaces a broken connection, backing off between attempts.
// Rejected credentials are not retried.
func (a *DeepgramAdapter) redial() bool {
	for attempt := range a.maxRetries {
		wait := time.Duration(0)
		if attempt > 0 {
			wait = a.retryDelay(attempt - 1)
			log.Printf("deepgram: reconnect attempt %d/%d after %v", attempt+1, a.maxRetries, wait)
		}
		select {
		case <-a.ctx.Done():
			return false
		case <-time.After(wait):
		}

		conn, err := a.dial()
		if err == nil {
			a.mu.Lock()
			if a.conn != nil {
				a.conn.Close()
			}
			a.conn = conn
			a.mu.Unlock()
			log.Printf("deepgram: reconnected")
			return true
		}
		log.Printf("deepgram: reconnect failed: %v", err)
		if IsFatalTranscriptionError(err) {
			return false
		}
	}
	return false
}

func (a *DeepgramAdapter) buildURL() (string, error) {
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	if a.cfg.Model != "" {
		q.Set("model", a.cfg.Model)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(a.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	if a.cfg.Endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(a.cfg.Endpointing.Milliseconds(), 10))
	}
	if lang := normalizeDeepgramLanguage(a.cfg.Language); lang != "" {
		q.Set("language", lang)
	}
	if len(a.cfg.Keywords) > 0 {
		q.Set("keywords", strings.Join(a.cfg.Keywords, ","))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func normalizeDeepgramLanguage(code string) string {
	switch strings.ToLower(strings.ReplaceAll(code, "_", "-")) {
	case "":
		return ""
	case "en", "en-us":
		return "en-US"
	}
	return code
}

func (a *DeepgramAdapter) readLoop() {
	defer a.wg.Done()
	defer close(a.resultsCh)

	for a.ctx.Err() == nil {
		a.mu.Lock()
		conn := a.conn
		a.mu.Unlock()

		_, message, err := conn.ReadMessage()
		if err != nil {
			if a.ctx.Err() != nil || a.expectedClose(err) {
				return
			}
			log.Printf("deepgram: read error: %v, reconnecting", err)
			if !a.redial() {
				a.emit(TranscriptionResult{Error: fmt.Errorf("websocket read: %w, reconnection failed after %d attempts", err, a.maxRetries)})
				return
			}
			continue
		}

		var resp deepgramWSResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			log.Printf("deepgram: parse error: %v", err)
			continue
		}
		if r, ok := a.toResult(resp); ok {
			a.emit(r)
		}
	}
}

func (a *DeepgramAdapter) expectedClose(err error) bool {
	a.mu.Lock()
	closing := a.closing
	a.mu.Unlock()
	if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		log.Printf("deepgram: stream closed by server")
		return true
	}
	return false
}

// toResult turns a server message into a result, if it carries one.
func (a *DeepgramAdapter) toResult(resp deepgramWSResponse) (TranscriptionResult, bool) {
	switch resp.Type {
	case "Results":
		if resp.Channel == nil || len(resp.Channel.Alternatives) == 0 {
			return TranscriptionResult{}, false
		}
		transcript := resp.Channel.Alternatives[0].Transcript
		if transcript == "" && !resp.SpeechFinal {
			return TranscriptionResult{}, false
		}
		final := resp.IsFinal || resp.SpeechFinal
		if final {
			select {
			case a.finalizeDone <- struct{}{}:
			default:
			}
		}
		return TranscriptionResult{Text: transcript, IsFinal: final, SpeechFinal: resp.SpeechFinal}, true

	case "Error":
		if resp.Error == nil {
			return TranscriptionResult{}, false
		}
		msg := resp.Error.Message
		if resp.Error.Description != "" {
			msg += ": " + resp.Error.Description
		}
		log.Printf("deepgram: error: %s", msg)
		return TranscriptionResult{Error: fmt.Errorf("deepgram: %s", msg)}, true

	case "Metadata":
		if resp.Metadata != nil {
			log.Printf("deepgram: session started, request_id=%s, model=%s",
				resp.Metadata.RequestID, resp.Metadata.ModelInfo.Name)
		}
	case "UtteranceEnd", "SpeechStarted":
	default:
		log.Printf("deepgram: unknown message type: %s", resp.Type)
	}
	return TranscriptionResult{}, false
}

func (a *DeepgramAdapter) emit(r TranscriptionResult) {
	select {
	case a.resultsCh <- r:
	case <-a.ctx.Done():
	}
}

// SendChunk sends raw binary audio, redialing once on a write failure.
func (a *DeepgramAdapter) SendChunk(audio []byte) error {
	err := a.write(audio)
	if err == nil || !errors.Is(err, errWriteFailed) {
		return err
	}
	log.Printf("deepgram: %v, reconnecting", err)
	if !a.redial() {
		return err
	}
	return a.write(audio)
}

var errWriteFailed = errors.New("websocket write failed")

func (a *DeepgramAdapter) write(audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case !a.started:
		return fmt.Errorf("adapter not started")
	case a.ctx.Err() != nil:
		return a.ctx.Err()
	case a.conn == nil:
		return fmt.Errorf("no connection")
	}
	if err := a.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("%w: %v", errWriteFailed, err)
	}
	return nil
}

func (a *DeepgramAdapter) Results() <-chan TranscriptionResult {
	return a.resultsCh
}

// Finalize sends CloseStream and waits for the final transcript.
func (a *DeepgramAdapter) Finalize(ctx context.Context) error {
	a.mu.Lock()
	if !a.started || a.conn == nil {
		a.mu.Unlock()
		return nil
	}

	// a final that arrived before the stream was closed does not count
	select {
	case <-a.finalizeDone:
	default:
	}

	a.closing = true
	err := a.conn.WriteJSON(deepgramCloseStream{Type: "CloseStream"})
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("finalize write: %w", err)
	}

	select {
	case <-a.finalizeDone:
		return nil
	case <-ctx.Done():
		log.Printf("deepgram: finalize timeout")
		return ctx.Err()
	case <-a.ctx.Done():
		return a.ctx.Err()
	}
}

func (a *DeepgramAdapter) Close() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.cancel()
	conn := a.conn
	a.started = false
	a.mu.Unlock()

	// unblocks readLoop
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	a.wg.Wait()

	log.Printf("deepgram: closed")
	return nil
}

// IsUnauthorized reports whether err came from rejected credentials.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
