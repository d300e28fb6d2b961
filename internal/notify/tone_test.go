package notify

import (
	"math"
	"testing"
	"time"
)

func TestChimeShape(t *testing.T) {
	tones := Chime()
	if len(tones) != 2 {
		t.Fatalf("got %d tones, want 2", len(tones))
	}
	if tones[0].FrequencyHz >= tones[1].FrequencyHz {
		t.Errorf("chime should rise: %v then %v", tones[0].FrequencyHz, tones[1].FrequencyHz)
	}
	for _, tone := range tones {
		if tone.Duration != 200*time.Millisecond {
			t.Errorf("duration = %v, want 200ms", tone.Duration)
		}
	}
}

func TestRenderPCMLengthAndDecay(t *testing.T) {
	const rate = 44100
	samples := RenderPCM(Chime(), rate)

	want := 2 * rate * 200 / 1000
	if len(samples) != want {
		t.Fatalf("got %d samples, want %d", len(samples), want)
	}

	// Peak amplitude near the start of a tone must dominate the tail.
	peak := func(lo, hi int) float64 {
		var max float64
		for _, s := range samples[lo:hi] {
			if v := math.Abs(float64(s)); v > max {
				max = v
			}
		}
		return max
	}
	toneLen := want / 2
	head := peak(0, toneLen/10)
	tail := peak(toneLen*9/10, toneLen)
	if tail >= head/10 {
		t.Errorf("tone does not decay: head=%v tail=%v", head, tail)
	}
}
