package transcriber

import "context"

// TranscriptionResult is one message from a streaming adapter.
type TranscriptionResult struct {
	Text    string // partial or final transcript
	IsFinal bool   // the text for this audio span will not change again
	// SpeechFinal marks the end of an utterance as detected by the service.
	SpeechFinal bool
	Error       error
}

// StreamingAdapter sends audio in real time and reports hypotheses as they arrive.
type StreamingAdapter interface {
	// Start opens the connection. language overrides the constructor value when set.
	Start(ctx context.Context, language string) error

	SendChunk(audio []byte) error

	// Results is closed when the connection ends.
	Results() <-chan TranscriptionResult

	// Finalize signals end of audio and waits for the last final result
	// or ctx expiry.
	Finalize(ctx context.Context) error

	Close() error
}

// BatchAdapter transcribes a complete recording in one request.
type BatchAdapter interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}
