// Package engine composes the realtime core behind one explicit
// start/stop lifecycle, owned by whatever embeds it (the daemon here,
// a UI shell elsewhere).
package engine

import (
	"context"

	"github.com/velora/pushsync/internal/bus"
	"github.com/velora/pushsync/internal/composer"
	"github.com/velora/pushsync/internal/convo"
	"github.com/velora/pushsync/internal/notify"
	"github.com/velora/pushsync/internal/recorder"
	"github.com/velora/pushsync/internal/stream"
	"go.uber.org/zap"
)

// Engine bundles the realtime components. The stream connection is owned
// exclusively by Stream; the conversation collection exclusively by
// Conversations — embedders read through Snapshot/Subscribe only.
type Engine struct {
	Stream        *stream.Client
	Conversations *convo.Store
	Notifications *notify.Dispatcher
	Composer      *composer.Composer
	Recorder      *recorder.Recorder

	bus    *bus.Bus
	logger *zap.Logger
}

// New wires an engine from its parts.
func New(
	streamClient *stream.Client,
	store *convo.Store,
	dispatcher *notify.Dispatcher,
	comp *composer.Composer,
	rec *recorder.Recorder,
	b *bus.Bus,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Stream:        streamClient,
		Conversations: store,
		Notifications: dispatcher,
		Composer:      comp,
		Recorder:      rec,
		bus:           b,
		logger:        logger,
	}
}

// Start attaches the store and dispatcher to the bus, then opens the
// stream so no early event is missed by either consumer.
func (e *Engine) Start(ctx context.Context) {
	e.Conversations.Start(ctx)
	e.Notifications.Start(ctx, e.bus)
	e.Stream.Start(ctx)
	e.logger.Info("engine started")
}

// Stop tears the engine down: the stream closes (clearing its reconnect
// and polling timers), an in-flight recording is cancelled and the device
// released, and the bus consumers detach. Messages already handed to the
// send collaborator are left alone.
func (e *Engine) Stop() {
	e.Stream.Stop()
	if e.Recorder != nil && e.Recorder.State() == recorder.Recording {
		if err := e.Recorder.Cancel(); err != nil {
			e.logger.Warn("cancel recording on shutdown", zap.Error(err))
		}
	}
	e.Notifications.Stop()
	e.Conversations.Stop()
	e.logger.Info("engine stopped")
}
