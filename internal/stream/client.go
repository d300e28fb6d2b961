// Package stream owns the persistent server-push connection. It reconnects
// after a fixed delay on any transport error and activates a polling
// fallback while the link is down.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/velora/pushsync/internal/bus"
	"github.com/velora/pushsync/internal/event"
	"github.com/velora/pushsync/internal/status"
	"go.uber.org/zap"
)

const (
	// DefaultReconnectDelay is the fixed pause before a reconnect attempt.
	// Fixed rather than exponential: reconnect load per client is one
	// request every few seconds at worst.
	DefaultReconnectDelay = 7 * time.Second
	// DefaultPollInterval drives the pull-based refresh while disconnected.
	DefaultPollInterval = 5 * time.Second
)

// RefreshFunc is the pull-based fallback invoked while the push link is
// down, typically a full conversation refetch.
type RefreshFunc func(ctx context.Context) error

// Config tunes one stream client.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
	PollInterval   time.Duration
}

// Client maintains exactly one live connection to the stream endpoint,
// decodes frames, and publishes the typed events on the bus under
// stream.event.<type>. Link state changes go out under stream.state.*.
type Client struct {
	cfg       Config
	transport Transport
	machine   *status.Machine
	bus       *bus.Bus
	refresh   RefreshFunc
	logger    *zap.Logger

	mu         sync.Mutex
	started    bool
	gen        int // bumped on every teardown/reconnect to invalidate stale goroutines
	ctx        context.Context
	cancel     context.CancelFunc
	reader     FrameReader
	reconnect  *time.Timer
	pollCancel context.CancelFunc
}

// NewClient creates a stream client. refresh may be nil to disable the
// polling fallback.
func NewClient(cfg Config, transport Transport, machine *status.Machine, b *bus.Bus, refresh RefreshFunc, logger *zap.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:       cfg,
		transport: transport,
		machine:   machine,
		bus:       b,
		refresh:   refresh,
		logger:    logger,
	}
}

// Start opens the connection. Calling Start while already running first
// tears down the previous connection.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.teardownLocked()
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.gen++
	g := c.gen
	_ = c.machine.Transition(status.Connecting)
	c.mu.Unlock()

	go c.connect(g)
}

// Stop closes the connection and cancels the reconnect timer and the
// polling fallback. Idempotent.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// teardownLocked must be called with c.mu held.
func (c *Client) teardownLocked() {
	c.gen++
	c.started = false
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.stopPollingLocked()
	if c.reader != nil {
		_ = c.reader.Close()
		c.reader = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	_ = c.machine.Transition(status.Disconnected)
}

func (c *Client) connect(g int) {
	c.mu.Lock()
	if g != c.gen {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	url := c.cfg.URL
	c.mu.Unlock()

	reader, err := c.transport.Connect(ctx, url)

	c.mu.Lock()
	if g != c.gen {
		c.mu.Unlock()
		if reader != nil {
			_ = reader.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("stream connect failed", zap.Error(err))
		c.linkDownLocked(g, err)
		c.mu.Unlock()
		return
	}

	c.reader = reader
	_ = c.machine.Transition(status.Connected)
	c.stopPollingLocked()
	c.mu.Unlock()

	c.logger.Info("stream connected", zap.String("url", url))
	c.bus.Publish(bus.Event{Topic: bus.TopicStreamState + "connected", At: time.Now()})

	go c.readLoop(g, reader)
}

func (c *Client) readLoop(g int, reader FrameReader) {
	for {
		data, err := reader.Next()
		if err != nil {
			c.mu.Lock()
			if g == c.gen {
				_ = reader.Close()
				c.reader = nil
				c.logger.Warn("stream dropped", zap.Error(err))
				c.linkDownLocked(g, err)
			}
			c.mu.Unlock()
			return
		}

		evt, derr := event.Decode(data)
		if derr != nil {
			// Never fatal: unknown and malformed frames are dropped.
			if errors.Is(derr, event.ErrUnknownType) {
				c.logger.Debug("ignoring unknown frame type", zap.Error(derr))
			} else {
				c.logger.Warn("dropping malformed frame", zap.Error(derr), zap.ByteString("frame", data))
			}
			continue
		}

		c.bus.Publish(bus.Event{
			Topic:   bus.TopicStreamEvent + string(evt.Kind()),
			At:      time.Now(),
			Payload: evt,
		})
	}
}

// linkDownLocked transitions to Disconnected, schedules exactly one
// reconnect attempt, and starts the polling fallback. Must be called with
// c.mu held and g == c.gen.
func (c *Client) linkDownLocked(g int, cause error) {
	_ = c.machine.Transition(status.Disconnected)
	c.bus.Publish(bus.Event{Topic: bus.TopicStreamState + "disconnected", At: time.Now(), Payload: cause})

	c.reconnect = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.attemptReconnect(g)
	})
	c.startPollingLocked()
}

func (c *Client) attemptReconnect(g int) {
	c.mu.Lock()
	if !c.started || g != c.gen {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.gen++
	next := c.gen
	_ = c.machine.Transition(status.Connecting)
	c.mu.Unlock()

	c.connect(next)
}

// startPollingLocked is a no-op when the fallback is already active or no
// refresh func was supplied. Must be called with c.mu held.
func (c *Client) startPollingLocked() {
	if c.pollCancel != nil || c.refresh == nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.pollCancel = cancel
	go c.pollLoop(ctx)
}

func (c *Client) stopPollingLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
}

func (c *Client) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Only while the push link is confirmed down; once it is back
			// the stream covers the same ground.
			if c.machine.Current() == status.Connected {
				continue
			}
			if err := c.refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("poll refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
