package notify

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/velora/pushsync/internal/event"
)

type fakeSynth struct {
	mu    sync.Mutex
	plays [][]Tone
	err   error
}

func (f *fakeSynth) Play(tones []Tone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, tones)
	return f.err
}

func (f *fakeSynth) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plays)
}

func amount(v float64) *float64 { return &v }

func TestWithdrawalRequestedToast(t *testing.T) {
	center := NewCenter(nil, time.Minute)
	synth := &fakeSynth{}
	d := NewDispatcher(center, synth, nil)

	d.OnEvent(event.WithdrawalRequested{})

	active := center.Active()
	if len(active) != 1 {
		t.Fatalf("got %d toasts, want 1", len(active))
	}
	if active[0].Level != LevelInfo {
		t.Errorf("level = %s, want info", active[0].Level)
	}
	if synth.count() != 1 {
		t.Errorf("chimes = %d, want 1", synth.count())
	}
}

func TestWithdrawalApprovedIncludesAmount(t *testing.T) {
	center := NewCenter(nil, time.Minute)
	d := NewDispatcher(center, &fakeSynth{}, nil)

	d.OnEvent(event.WithdrawalProcessed{Status: event.WithdrawalApproved, ApprovedAmount: amount(250)})

	active := center.Active()
	if len(active) != 1 || active[0].Level != LevelSuccess {
		t.Fatalf("toasts = %+v", active)
	}
	if !strings.Contains(active[0].Message, "250.00") {
		t.Errorf("message %q missing amount", active[0].Message)
	}
}

func TestWithdrawalRejectedIncludesNote(t *testing.T) {
	center := NewCenter(nil, time.Minute)
	d := NewDispatcher(center, &fakeSynth{}, nil)

	d.OnEvent(event.WithdrawalProcessed{Status: event.WithdrawalRejected, AdminNote: "document expired"})

	active := center.Active()
	if len(active) != 1 || active[0].Level != LevelError {
		t.Fatalf("toasts = %+v", active)
	}
	if !strings.Contains(active[0].Message, "document expired") {
		t.Errorf("message %q missing admin note", active[0].Message)
	}
}

func TestFirstConnectedSuppressed(t *testing.T) {
	center := NewCenter(nil, time.Minute)
	synth := &fakeSynth{}
	d := NewDispatcher(center, synth, nil)

	d.OnEvent(event.Connected{})
	if len(center.Active()) != 0 {
		t.Fatal("initial handshake produced a toast")
	}

	d.OnEvent(event.Connected{})
	active := center.Active()
	if len(active) != 1 {
		t.Fatalf("got %d toasts after reconnect, want 1", len(active))
	}
	if active[0].Level != LevelInfo {
		t.Errorf("level = %s", active[0].Level)
	}
}

func TestConversationEventsProduceNoCue(t *testing.T) {
	center := NewCenter(nil, time.Minute)
	synth := &fakeSynth{}
	d := NewDispatcher(center, synth, nil)

	d.OnEvent(event.NewMessage{ConversationID: "c1"})
	d.OnEvent(event.MessagesRead{ConversationID: "c1"})

	if len(center.Active()) != 0 || synth.count() != 0 {
		t.Error("conversation events must not toast or chime")
	}
}

func TestSynthFailureDoesNotFailNotification(t *testing.T) {
	center := NewCenter(nil, time.Minute)
	d := NewDispatcher(center, &fakeSynth{err: errors.New("no audio device")}, nil)

	d.OnEvent(event.WithdrawalRequested{})
	if len(center.Active()) != 1 {
		t.Error("toast missing when synth fails")
	}
}

func TestNilSynthSkipsChimeSilently(t *testing.T) {
	center := NewCenter(nil, time.Minute)
	d := NewDispatcher(center, nil, nil)

	d.OnEvent(event.WithdrawalRequested{})
	if len(center.Active()) != 1 {
		t.Error("toast missing with nil synth")
	}
}

func TestToastAutoDismiss(t *testing.T) {
	center := NewCenter(nil, 30*time.Millisecond)
	center.Push(LevelInfo, "ephemeral")

	if len(center.Active()) != 1 {
		t.Fatal("toast not active")
	}
	deadline := time.Now().Add(time.Second)
	for len(center.Active()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("toast never auto-dismissed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExplicitDismiss(t *testing.T) {
	center := NewCenter(nil, time.Minute)
	toast := center.Push(LevelError, "stuck")
	center.Dismiss(toast.ID)
	if len(center.Active()) != 0 {
		t.Error("toast still active after dismiss")
	}
	center.Dismiss("unknown-id") // no-op
}
