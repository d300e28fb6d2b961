package notify

import (
	"math"
	"time"
)

// Tone is a single synthesized note.
type Tone struct {
	FrequencyHz float64
	Duration    time.Duration
}

// Chime is the notification cue: two rising tones, each decaying over
// ~200ms. Generated programmatically; there is no bundled audio asset.
func Chime() []Tone {
	return []Tone{
		{FrequencyHz: 820, Duration: 200 * time.Millisecond},
		{FrequencyHz: 1020, Duration: 200 * time.Millisecond},
	}
}

// ToneSynthesizer plays a tone sequence on the host platform (WebAudio
// oscillator in a browser shell, an OS audio API elsewhere). A failing or
// absent synthesizer silences the cue; it never fails the notification.
type ToneSynthesizer interface {
	Play(tones []Tone) error
}

// RenderPCM renders a tone sequence as mono 16-bit samples at the given
// rate, applying an exponential amplitude decay across each tone. Synth
// adapters without their own oscillator feed this straight to the sound
// device.
func RenderPCM(tones []Tone, sampleRate int) []int16 {
	var out []int16
	for _, tone := range tones {
		n := int(float64(sampleRate) * tone.Duration.Seconds())
		for i := 0; i < n; i++ {
			t := float64(i) / float64(sampleRate)
			// Decay to roughly 1% of initial amplitude by the tone's end.
			decay := math.Exp(-4.6 * float64(i) / float64(n))
			sample := math.Sin(2*math.Pi*tone.FrequencyHz*t) * decay
			out = append(out, int16(sample*math.MaxInt16*0.6))
		}
	}
	return out
}
