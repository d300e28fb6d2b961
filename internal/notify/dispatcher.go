// Package notify turns stream events into user-visible cues: a toast plus
// a short synthesized chime.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/velora/pushsync/internal/bus"
	"github.com/velora/pushsync/internal/event"
	"go.uber.org/zap"
)

// Dispatcher maps wallet and link events to toasts and audio cues.
type Dispatcher struct {
	center *Center
	synth  ToneSynthesizer
	logger *zap.Logger

	mu        sync.Mutex
	handshook bool // first connected frame is the initial handshake, not a recovery
	cancel    context.CancelFunc
}

// NewDispatcher creates a dispatcher. synth may be nil; cues are then
// skipped silently.
func NewDispatcher(center *Center, synth ToneSynthesizer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{center: center, synth: synth, logger: logger}
}

// Start subscribes the dispatcher to parsed stream events on the bus.
func (d *Dispatcher) Start(ctx context.Context, b *bus.Bus) {
	ctx, d.cancel = context.WithCancel(ctx)
	ch, unsub := b.Subscribe(bus.TopicStreamEvent, 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if parsed, ok := evt.Payload.(event.Event); ok {
					d.OnEvent(parsed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop detaches the dispatcher from the bus.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// OnEvent produces zero or one toast and zero or one audio cue for evt.
func (d *Dispatcher) OnEvent(evt event.Event) {
	switch e := evt.(type) {
	case event.Connected:
		d.mu.Lock()
		first := !d.handshook
		d.handshook = true
		d.mu.Unlock()
		if first {
			return
		}
		d.cue(LevelInfo, "Connection restored")
	case event.WithdrawalRequested:
		d.cue(LevelInfo, "New withdrawal request received")
	case event.WithdrawalProcessed:
		switch e.Status {
		case event.WithdrawalApproved:
			msg := "Withdrawal approved"
			if e.ApprovedAmount != nil {
				msg = fmt.Sprintf("Withdrawal approved: %.2f", *e.ApprovedAmount)
			}
			d.cue(LevelSuccess, msg)
		case event.WithdrawalRejected:
			msg := "Withdrawal rejected"
			if e.AdminNote != "" {
				msg = fmt.Sprintf("Withdrawal rejected: %s", e.AdminNote)
			}
			d.cue(LevelError, msg)
		}
	case event.NewMessage, event.MessagesRead:
		// Conversation state; the store handles these.
	}
}

func (d *Dispatcher) cue(level Level, message string) {
	d.center.Push(level, message)
	if d.synth == nil {
		return
	}
	if err := d.synth.Play(Chime()); err != nil {
		// Audio is best-effort; the toast already went out.
		d.logger.Debug("chime skipped", zap.Error(err))
	}
}
