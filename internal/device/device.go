// Package device implements the compute-device abstraction (C1): platform
// enumeration, buffers, kernels, and the single in-order command queue a
// Scheme schedules work against.
//
// The queue itself is grounded on the teacher's akita/v4/sim.Buffer, the
// same named, capacity-bounded FIFO the teacher uses to hold messages
// in-flight between simulated components (core/port.go). Here it holds
// queuedCommand closures instead of sim.Msg values, reused for exactly the
// property spec.md §4.1 asks for: "enqueue ordering within one device queue
// is FIFO; queueBarrier imposes a happens-before between prior and
// subsequent enqueues."
package device

import (
	"fmt"
	"sync"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/hipims/hipims-go/internal/errs"
	"github.com/hipims/hipims-go/internal/program"
)

// Platform describes an enumerable compute platform.
type Platform struct {
	Name    string
	Vendor  string
	Devices []Descriptor
}

// Descriptor describes a single selectable device.
type Descriptor struct {
	Name              string
	MaxWorkGroupSize  int
	SupportsCache     bool
	PreferredWorkSize [2]int
}

// DeviceFilter selects a device out of the enumerated platforms.
type DeviceFilter struct {
	PlatformIndex int
	DeviceIndex   int
}

// queueDepth is generous: a batch can enqueue many iterations worth of
// commands (boundary + flux + friction + reduction + advance, each several
// commands) before a barrier drains them.
const queueDepth = 1 << 16

type queuedCommand struct {
	isBarrier bool
	exec      func() error
}

// Device is the host-side handle to a compute device: it owns the command
// queue every Buffer and Kernel operation is enqueued against.
type Device interface {
	ListPlatforms() []Platform
	SelectDevice(filter DeviceFilter) (*Descriptor, error)

	NewBuffer(spec BufferSpec) (*Buffer, error)
	NewKernel(p *program.Program, name string) (*Kernel, error)

	QueueBarrier()
	Flush() error
	BlockUntilFinished() error
	IsBusy() bool
}

// cpuQueueDevice is the only Device implementation in this module: real
// kernel numerics are out of scope (spec.md §1), so the "device" is a
// strictly-ordered command queue that executes registered Go closures in
// place of compiled GPU code. This still reproduces every orchestration
// invariant the scheme depends on (FIFO ordering, barrier happens-before,
// busy/idle state, blocking drain).
type cpuQueueDevice struct {
	mu          sync.Mutex
	descriptor  Descriptor
	queue       sim.Buffer
	busy        bool
	simTimeFunc func() float64
}

// New creates a Device backed by a single simulated queue. simTimeFunc, when
// non-nil, is consulted to stamp errors with the simulation time at which
// they occurred (spec §7); it may be left nil for components that do not yet
// have a clock (e.g. device-selection smoke tests).
func New(desc Descriptor, simTimeFunc func() float64) Device {
	if simTimeFunc == nil {
		simTimeFunc = func() float64 { return 0 }
	}
	return &cpuQueueDevice{
		descriptor:  desc,
		queue:       sim.NewBuffer("hipims.device.queue", queueDepth),
		simTimeFunc: simTimeFunc,
	}
}

func (d *cpuQueueDevice) ListPlatforms() []Platform {
	return []Platform{{
		Name:    "hipims-cpu",
		Vendor:  "hipims",
		Devices: []Descriptor{d.descriptor},
	}}
}

func (d *cpuQueueDevice) SelectDevice(filter DeviceFilter) (*Descriptor, error) {
	if filter.PlatformIndex != 0 || filter.DeviceIndex != 0 {
		return nil, errs.New(errs.ModelStop, d.simTimeFunc(),
			"no device at platform %d device %d", filter.PlatformIndex, filter.DeviceIndex)
	}
	desc := d.descriptor
	return &desc, nil
}

// enqueue pushes a command onto the device queue. It is the single place
// queue-full backpressure is observed: a full queue is a ModelStop, exactly
// like a failed buffer/kernel creation (spec §4.1).
func (d *cpuQueueDevice) enqueue(cmd queuedCommand) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.queue.CanPush() {
		return errs.New(errs.ModelStop, d.simTimeFunc(), "device command queue is full")
	}
	d.queue.Push(cmd)
	d.busy = true
	return nil
}

// QueueBarrier inserts a barrier marker. Barriers are no-ops to execute but
// their presence in the FIFO enforces nothing extra in this single-queue
// implementation beyond the ordering already guaranteed by FIFO draining;
// they exist so BlockUntilFinished and Flush have an explicit "drain up to
// here" semantic that mirrors a real command-queue marker.
func (d *cpuQueueDevice) QueueBarrier() {
	_ = d.enqueue(queuedCommand{isBarrier: true, exec: func() error { return nil }})
}

// Flush drains the queue synchronously. A real async device would merely
// submit the queue to the driver here and return; because this device is a
// same-process stand-in with no separate execution context, flush and block
// observably coincide, but are kept as distinct operations so callers keep
// the same structure a real device binding would need.
func (d *cpuQueueDevice) Flush() error {
	return d.drain()
}

// BlockUntilFinished waits for the queue to empty.
func (d *cpuQueueDevice) BlockUntilFinished() error {
	return d.drain()
}

func (d *cpuQueueDevice) drain() error {
	for {
		d.mu.Lock()
		if d.queue.Size() == 0 {
			d.busy = false
			d.mu.Unlock()
			return nil
		}
		item := d.queue.Pop()
		d.mu.Unlock()

		cmd, ok := item.(queuedCommand)
		if !ok {
			return errs.New(errs.Fatal, d.simTimeFunc(), "device queue corrupted: unexpected item %T", item)
		}
		if cmd.isBarrier {
			continue
		}
		if err := cmd.exec(); err != nil {
			return err
		}
	}
}

// IsBusy reports whether the queue currently holds unexecuted commands.
func (d *cpuQueueDevice) IsBusy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy && d.queue.Size() > 0
}

func (d *cpuQueueDevice) String() string {
	return fmt.Sprintf("Device(%s)", d.descriptor.Name)
}
