package device

import (
	"github.com/hipims/hipims-go/internal/errs"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/program"
)

// Kernel is a named unit of work constructed from a compiled program.
// Arguments are rebound every iteration (spec §4.2/§9 "rebind ... do not
// duplicate kernel objects"); assigning nil to an argument slot means
// "leave unbound until later" and scheduling with any nil-bound argument is
// rejected rather than silently executed against stale data.
type Kernel struct {
	name       string
	fn         kernelreg.Func
	device     *cpuQueueDevice
	groupSize  [3]int
	globalSize [3]int
	args       []*Buffer
	constants  map[string]string
}

// NewKernel resolves name against p's compiled kernel table.
func (d *cpuQueueDevice) NewKernel(p *program.Program, name string) (*Kernel, error) {
	fn, err := p.Kernel(name)
	if err != nil {
		return nil, errs.Wrap(errs.ModelStop, d.simTimeFunc(), err)
	}
	return &Kernel{
		name:      name,
		fn:        fn,
		device:    d,
		constants: p.Constants,
	}, nil
}

// Name returns the kernel's name.
func (k *Kernel) Name() string { return k.name }

// SetGroupSize sets the work-group size. The device rounds the global size
// up to a multiple of the group size at schedule time (spec §4.1).
func (k *Kernel) SetGroupSize(x, y, z int) {
	k.groupSize = [3]int{x, y, z}
}

// SetGlobalSize sets the requested global (problem) size.
func (k *Kernel) SetGlobalSize(x, y, z int) {
	k.globalSize = [3]int{x, y, z}
}

// AssignArgument binds argument index i to buf. buf == nil means "leave
// unbound" (spec §4.1).
func (k *Kernel) AssignArgument(i int, buf *Buffer) {
	for len(k.args) <= i {
		k.args = append(k.args, nil)
	}
	k.args[i] = buf
}

// AssignArguments binds every argument at once.
func (k *Kernel) AssignArguments(bufs []*Buffer) {
	k.args = append([]*Buffer(nil), bufs...)
}

// roundUp rounds global up to the next multiple of group (group==0 means no
// rounding is applied on that axis).
func roundUp(global, group int) int {
	if group <= 0 {
		return global
	}
	if global%group == 0 {
		return global
	}
	return (global/group + 1) * group
}

func (k *Kernel) effectiveGlobalSize() [3]int {
	var out [3]int
	for i := 0; i < 3; i++ {
		out[i] = roundUp(k.globalSize[i], k.groupSize[i])
	}
	return out
}

// ScheduleExecution enqueues this kernel's invocation on the owning
// device's command queue. A kernel with any nil-bound argument is rejected
// (model-stop) rather than executed against an undefined slot (spec §4.1
// invariant).
func (k *Kernel) ScheduleExecution() error {
	for i, a := range k.args {
		if a == nil {
			return errs.New(errs.ModelStop, k.device.simTimeFunc(),
				"kernel %q: argument %d is unbound", k.name, i)
		}
	}

	args := make([]kernelreg.ArgView, len(k.args))
	for i, a := range k.args {
		args[i] = kernelreg.ArgView{Name: a.name, Data: a.host}
	}
	ctx := &kernelreg.ExecContext{
		Args:       args,
		GroupSize:  k.groupSize,
		GlobalSize: k.effectiveGlobalSize(),
		Constants:  k.constants,
	}

	return k.device.enqueue(queuedCommand{exec: func() error {
		return k.fn(ctx)
	}})
}

// ScheduleExecutionAndFlush schedules then immediately drains the queue.
func (k *Kernel) ScheduleExecutionAndFlush() error {
	if err := k.ScheduleExecution(); err != nil {
		return err
	}
	return k.device.Flush()
}
