package audio

import (
	"os"
	"sync"
	"time"
)

// FakeDevice is an in-memory Device for tests. Operations complete only when
// the test finishes them, or when they are terminated.
type FakeDevice struct {
	mu      sync.Mutex
	ops     []*FakeOp
	missing bool
}

// NewFakeDevice creates an empty FakeDevice.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{}
}

// FakeOp is one recorded operation; it doubles as its own Handle.
type FakeOp struct {
	Path   string
	Offset time.Duration
	Record bool

	mu         sync.Mutex
	done       chan struct{}
	terminated bool
	killed     bool
}

// Play implements Device.
func (d *FakeDevice) Play(path string) (Handle, error) {
	return d.add(&FakeOp{Path: path}), nil
}

// PlayFrom implements Device.
func (d *FakeDevice) PlayFrom(path string, offset time.Duration) (Handle, error) {
	return d.add(&FakeOp{Path: path, Offset: offset}), nil
}

// Record implements Device. Like arecord, it creates the capture file as a
// side effect so callers can validate it afterwards.
func (d *FakeDevice) Record(path string) (Handle, error) {
	_ = os.WriteFile(path, make([]byte, 8192), 0o644)
	return d.add(&FakeOp{Path: path, Record: true}), nil
}

// Missing implements Device.
func (d *FakeDevice) Missing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.missing
}

// SetMissing flips the missing flag.
func (d *FakeDevice) SetMissing(missing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.missing = missing
}

// Ops returns every operation started so far.
func (d *FakeDevice) Ops() []*FakeOp {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeOp, len(d.ops))
	copy(out, d.ops)
	return out
}

// WaitForOp blocks until at least n operations have started, or the timeout
// elapses. It returns the nth operation or nil.
func (d *FakeDevice) WaitForOp(n int, timeout time.Duration) *FakeOp {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		if len(d.ops) >= n {
			op := d.ops[n-1]
			d.mu.Unlock()
			return op
		}
		d.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (d *FakeDevice) add(op *FakeOp) *FakeOp {
	op.done = make(chan struct{})
	d.mu.Lock()
	d.ops = append(d.ops, op)
	d.mu.Unlock()
	return op
}

// Finish completes the operation as if the audio ran to its end.
func (o *FakeOp) Finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finishLocked()
}

// Terminated reports whether the operation was stopped early.
func (o *FakeOp) Terminated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.terminated || o.killed
}

// Running implements Handle.
func (o *FakeOp) Running() bool {
	select {
	case <-o.done:
		return false
	default:
		return true
	}
}

// Terminate implements Handle. Like the real utilities, a graceful stop also
// ends the operation.
func (o *FakeOp) Terminate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.terminated = true
	o.finishLocked()
}

// Kill implements Handle.
func (o *FakeOp) Kill() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.killed = true
	o.finishLocked()
}

// Wait implements Handle.
func (o *FakeOp) Wait() error {
	<-o.done
	return nil
}

func (o *FakeOp) finishLocked() {
	select {
	case <-o.done:
	default:
		close(o.done)
	}
}
