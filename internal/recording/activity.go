package recording

import (
	"encoding/binary"
	"math"
	"time"
)

// Level returns the RMS level of s16le PCM normalised to 0..1.
func Level(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum/float64(samples)) / math.MaxInt16
}

// Activity tracks whether speech has been heard and how long the input has
// been quiet since. The zero value is not usable; see NewActivity.
type Activity struct {
	threshold  float64
	heardVoice bool
	lastVoice  time.Time
}

func NewActivity(threshold float64, now time.Time) *Activity {
	return &Activity{threshold: threshold, lastVoice: now}
}

// Observe records a frame captured at ts and reports whether it was voiced.
func (a *Activity) Observe(pcm []byte, ts time.Time) bool {
	if Level(pcm) < a.threshold {
		return false
	}
	a.heardVoice = true
	a.lastVoice = ts
	return true
}

func (a *Activity) HeardVoice() bool { return a.heardVoice }

// Silence is how long the input has been quiet as of now. Before any voice
// it counts from the start of capture.
func (a *Activity) Silence(now time.Time) time.Duration {
	return now.Sub(a.lastVoice)
}
