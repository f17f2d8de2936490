// Package kernelreg is the named-function stand-in for compiled device
// code. Real shallow-water numerics (Godunov/HLLC, MUSCL-Hancock, simplified
// inertial, Promaides) are out of scope for this module (spec.md §1); what
// the orchestrator needs from "compilation" is a contract it can schedule
// and bind arguments against. kernelreg supplies exactly that contract: a
// registry (one per NewRegistry call) mapping a kernel name to a Go
// function that receives the bound buffers and executes against them.
//
// Production kernel bundles register themselves here (by name) before
// program.Builder.Compile is called; this module ships only the
// orchestration-exercising stand-ins under kernelreg/testkernels.
package kernelreg

import (
	"fmt"
	"sync"
)

// ExecContext is everything a kernel function needs to run one invocation:
// its bound arguments in declaration order and the geometry it was launched
// with. Buffers are passed as the concrete []byte-backed host mirror view;
// the kernel function is responsible for interpreting the bytes according to
// the precision it was compiled for.
type ExecContext struct {
	Args       []ArgView
	GroupSize  [3]int
	GlobalSize [3]int
	Constants  map[string]string
}

// ArgView is the raw, mutable view of one kernel argument's host mirror.
type ArgView struct {
	Name string
	Data []byte
}

// Arg looks up a bound argument by the buffer name it was created with,
// letting kernel stand-ins address arguments by role instead of by the
// positional index the orchestrator happened to bind them at.
func (c *ExecContext) Arg(name string) ([]byte, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a.Data, true
		}
	}
	return nil, false
}

// Func is a registered kernel body.
type Func func(ctx *ExecContext) error

// Registry holds name -> Func bindings. A Registry is safe for concurrent
// use; program.Builder.Compile reads from it, and kernel bundles (e.g.
// testkernels.Register) and boundaries write to it before Compile.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds name to fn, overwriting any previous binding. Used by
// kernel-bundle packages (external to this module) and by tests.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the function bound to name, or an error if none is
// registered — the concrete, testable meaning of "compile" for this
// orchestration-only module (spec.md §9).
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("kernelreg: no kernel registered under name %q", name)
	}
	return fn, nil
}

// Names returns the registered kernel names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}
