package device

import (
	"github.com/hipims/hipims-go/internal/errs"
)

// BufferFlags mirrors spec.md §4.1's buffer flag triple.
type BufferFlags struct {
	Readable           bool
	Writable           bool
	PersistentHostCopy bool
}

// BufferSpec describes a buffer to allocate.
type BufferSpec struct {
	Name  string
	Size  int
	Flags BufferFlags
}

// Buffer is a named, host-mirrored device allocation.
//
// Grounded on core/port.go's defaultPort: a named object wrapping a
// host-side byte block behind a small set of queue-ordered operations,
// adapted from message buffering to raw byte buffering.
type Buffer struct {
	name    string
	flags   BufferFlags
	device  *cpuQueueDevice
	host    []byte
	created bool
	onRead  func([]byte)
}

// NewBuffer allocates a buffer of spec.Size bytes. Creation failures are
// model-stop (spec §4.1).
func (d *cpuQueueDevice) NewBuffer(spec BufferSpec) (*Buffer, error) {
	if spec.Size < 0 {
		return nil, errs.New(errs.ModelStop, d.simTimeFunc(), "buffer %q: negative size %d", spec.Name, spec.Size)
	}
	return &Buffer{
		name:   spec.Name,
		flags:  spec.Flags,
		device: d,
		host:   make([]byte, spec.Size),
	}, nil
}

// Name returns the buffer's name.
func (b *Buffer) Name() string { return b.name }

// Size returns the buffer's byte length.
func (b *Buffer) Size() int { return len(b.host) }

// Host returns the live host mirror. Callers that need a stable snapshot
// (e.g. rollback) must copy it themselves.
func (b *Buffer) Host() []byte { return b.host }

// SetHost overwrites the host mirror directly, without going through the
// device queue. Used to seed initial state before Prepare runs any kernels.
func (b *Buffer) SetHost(data []byte) {
	copy(b.host, data)
}

// QueueWriteAll enqueues a full write of the host mirror to the device. In
// this same-process device there is no separate device-side memory, so the
// "write" is a no-op placeholder that preserves call-site structure for a
// real device binding; what matters is that it participates in FIFO
// ordering relative to other enqueued operations.
func (b *Buffer) QueueWriteAll() error {
	if !b.created {
		b.created = true
	}
	return b.device.enqueue(queuedCommand{exec: func() error { return nil }})
}

// QueueWritePartial enqueues a partial write at the given byte offset.
func (b *Buffer) QueueWritePartial(offset, length int, src []byte) error {
	if offset < 0 || length < 0 || offset+length > len(b.host) {
		return errs.New(errs.ModelStop, b.device.simTimeFunc(),
			"buffer %q: partial write [%d:%d] out of bounds (size %d)", b.name, offset, offset+length, len(b.host))
	}
	return b.device.enqueue(queuedCommand{exec: func() error {
		copy(b.host[offset:offset+length], src[:length])
		return nil
	}})
}

// QueueReadAll enqueues a full read-back of the device buffer into the host
// mirror. Because host and "device" storage are the same slice in this
// implementation, the read is a no-op beyond invoking the read callback, but
// it is still queued so callers observe correct happens-after relative to
// prior writes and kernel executions.
func (b *Buffer) QueueReadAll() error {
	return b.device.enqueue(queuedCommand{exec: func() error {
		if b.onRead != nil {
			b.onRead(b.host)
		}
		return nil
	}})
}

// SetCallbackRead registers fn to run after each queued read completes.
func (b *Buffer) SetCallbackRead(fn func([]byte)) {
	b.onRead = fn
}
