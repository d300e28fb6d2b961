// Package recorder captures microphone audio into a single blob through a
// platform-supplied AudioCapture adapter.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDeviceDenied is returned by AudioCapture implementations when the user
// refuses device access or no capture device exists.
var ErrDeviceDenied = errors.New("audio capture device denied")

// ErrNotRecording is returned by Stop and Cancel outside a session.
var ErrNotRecording = errors.New("no recording in progress")

// State is the recorder's lifecycle phase.
type State string

const (
	Idle      State = "idle"
	Recording State = "recording"
	Stopped   State = "stopped"
	Cancelled State = "cancelled"
)

// ChunkStream is one live capture session handed out by an AudioCapture.
type ChunkStream interface {
	// Chunks yields binary fragments in capture order; the channel closes
	// after Stop once buffered audio is flushed.
	Chunks() <-chan []byte
	// Stop ends the capture and flushes.
	Stop() error
	// Release frees the device. Safe after Stop, required after Cancel.
	Release()
}

// AudioCapture opens the platform microphone. Open must fail (typically
// with ErrDeviceDenied) rather than silently produce no audio.
type AudioCapture interface {
	Open(ctx context.Context) (ChunkStream, error)
}

// Recorder accumulates capture chunks and counts elapsed seconds for UI
// feedback. One session at a time; a finished recorder can start a new
// session, which discards the previous one's chunks.
type Recorder struct {
	capture AudioCapture
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	opening bool // a Start holds the device open in flight
	stream  ChunkStream
	chunks  [][]byte
	elapsed int
	done    chan struct{} // closes when the drain goroutine exits
}

// New creates an idle recorder.
func New(capture AudioCapture, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{capture: capture, logger: logger, state: Idle}
}

// State returns the current lifecycle phase.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed returns whole seconds recorded so far in the current session.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Start opens the capture device and begins accumulating chunks. On device
// failure the recorder stays Idle and the error is returned.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == Recording || r.opening {
		r.mu.Unlock()
		return errors.New("recording already in progress")
	}
	r.opening = true
	r.mu.Unlock()

	stream, err := r.capture.Open(ctx)

	r.mu.Lock()
	r.opening = false
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("open capture device: %w", err)
	}
	r.state = Recording
	r.stream = stream
	r.chunks = nil
	r.elapsed = 0
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.drain(stream, done)
	return nil
}

func (r *Recorder) drain(stream ChunkStream, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				return
			}
			r.mu.Lock()
			if r.stream == stream {
				r.chunks = append(r.chunks, chunk)
			}
			r.mu.Unlock()
		case <-ticker.C:
			r.mu.Lock()
			if r.stream == stream && r.state == Recording {
				r.elapsed++
			}
			r.mu.Unlock()
		}
	}
}

// Stop finalizes the session into a single blob. Zero captured chunks yield
// an empty blob, not an error; the composer treats that as an upload
// failure rather than sending an empty voice message.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream := r.stream
	done := r.done
	r.mu.Unlock()

	if err := stream.Stop(); err != nil {
		r.logger.Warn("capture stop failed", zap.Error(err))
	}
	<-done // drain goroutine has flushed remaining chunks

	r.mu.Lock()
	defer r.mu.Unlock()
	var total int
	for _, c := range r.chunks {
		total += len(c)
	}
	blob := make([]byte, 0, total)
	for _, c := range r.chunks {
		blob = append(blob, c...)
	}
	r.chunks = nil
	r.stream = nil
	r.state = Stopped
	stream.Release()
	return blob, nil
}

// Cancel discards all captured chunks and releases the device immediately.
func (r *Recorder) Cancel() error {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	stream := r.stream
	done := r.done
	r.stream = nil // drain goroutine stops accumulating at once
	r.mu.Unlock()

	if err := stream.Stop(); err != nil {
		r.logger.Warn("capture stop failed", zap.Error(err))
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = nil
	r.state = Cancelled
	stream.Release()
	return nil
}
