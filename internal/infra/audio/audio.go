// Package audio provides the render/capture boundary. The playback engine
// sees only start/poll/terminate/kill semantics; the actual mechanism is the
// external ALSA utilities.
package audio

import (
	"time"
)

// Handle is one in-flight render or capture operation.
type Handle interface {
	// Running reports whether the operation is still in progress.
	Running() bool
	// Terminate asks the operation to stop gracefully.
	Terminate()
	// Kill stops the operation immediately.
	Kill()
	// Wait blocks until the operation has ended.
	Wait() error
}

// Device starts render and capture operations. At most one operation is
// active system-wide; the caller enforces that, not the device.
type Device interface {
	// Play renders the file from the beginning.
	Play(path string) (Handle, error)
	// PlayFrom renders the file starting at offset, for pause/resume.
	PlayFrom(path string, offset time.Duration) (Handle, error)
	// Record captures input audio into path until stopped.
	Record(path string) (Handle, error)
	// Missing reports whether the device has been found absent. The flag is
	// persistent; operations are skipped rather than retried per command.
	Missing() bool
}
