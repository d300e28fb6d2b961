package recorder

import "context"

// NoDevice is the AudioCapture for targets without microphone access
// (the headless daemon). Open always reports denial, so the recorder
// stays Idle and callers surface the error instead of recording silence.
type NoDevice struct{}

func (NoDevice) Open(context.Context) (ChunkStream, error) {
	return nil, ErrDeviceDenied
}
