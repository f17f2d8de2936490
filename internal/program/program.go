// Package program implements the program builder (C2): it accumulates
// kernel source fragments and named constants, then "compiles" them by
// resolving every kernel name the fragments reference against a
// kernelreg.Registry and emitting a textual prologue that defines each
// registered constant plus a precision macro.
//
// Grounded on the teacher's YAML-driven kernel loading in core/program.go,
// which likewise treats a kernel program as a bag of named, ordered pieces
// assembled before use; here the pieces are source-fragment strings instead
// of YAML instruction groups, and "assembly" produces a preprocessor-style
// prologue rather than an opcode list.
package program

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hipims/hipims-go/internal/errs"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/numeric"
)

// fragment is one accumulated piece of source text.
type fragment struct {
	text string
}

// Builder accumulates source fragments and constants before Compile.
type Builder struct {
	registry  *kernelreg.Registry
	fragments []fragment
	constants map[string]string
	precision numeric.Precision
}

// NewBuilder creates a Builder bound to registry (where kernel bodies are
// looked up at Compile time) and precision (which selects the precision
// macro emitted in the prologue).
func NewBuilder(registry *kernelreg.Registry, precision numeric.Precision) *Builder {
	return &Builder{
		registry:  registry,
		constants: make(map[string]string),
		precision: precision,
	}
}

// Prepend adds a fragment before all previously accumulated fragments.
func (b *Builder) Prepend(source string) {
	b.fragments = append([]fragment{{text: source}}, b.fragments...)
}

// Append adds a fragment after all previously accumulated fragments.
func (b *Builder) Append(source string) {
	b.fragments = append(b.fragments, fragment{text: source})
}

// RegisterConstant sets (overwriting) a named textual constant to be
// injected into the compile prologue.
func (b *Builder) RegisterConstant(name, value string) {
	b.constants[name] = value
}

// RegisterConstantFloat is a convenience wrapper for numeric constants.
func (b *Builder) RegisterConstantFloat(name string, value float64) {
	b.constants[name] = formatFloat(value)
}

// RegisterConstantInt is a convenience wrapper for integer constants.
func (b *Builder) RegisterConstantInt(name string, value int) {
	b.constants[name] = fmt.Sprintf("%d", value)
}

// RegisterKernel registers fn under name in the builder's registry and
// declares it to the fragment parser, so Compile resolves it without the
// caller having to hand-write a matching "// @kernel" marker line. Used by
// collaborators (e.g. package boundary) that generate one kernel closure
// per configured instance rather than shipping a fixed kernel bundle.
func (b *Builder) RegisterKernel(name string, fn kernelreg.Func) {
	b.registry.Register(name, fn)
	b.Append("// @kernel " + name)
}

// DeclareKernel declares name to the fragment parser without registering a
// new body, for kernels a caller has already placed in the builder's
// registry by some other means (e.g. a fixed kernel bundle registered once
// at startup rather than per Prepare call). Compile still fails if name
// turns out not to be registered.
func (b *Builder) DeclareKernel(name string) {
	b.Append("// @kernel " + name)
}

// RemoveConstant deletes a previously registered constant.
func (b *Builder) RemoveConstant(name string) {
	delete(b.constants, name)
}

// ClearConstants empties the constant map.
func (b *Builder) ClearConstants() {
	b.constants = make(map[string]string)
}

// KernelNames lists the kernel names the accumulated fragments declare they
// need, parsed out of lines of the form "// @kernel <name>" — the
// orchestration-only stand-in for a real GPU compiler's symbol table, since
// actual kernel source bodies are out of scope (spec.md §1).
func (b *Builder) KernelNames() []string {
	var names []string
	for _, f := range b.fragments {
		for _, line := range strings.Split(f.text, "\n") {
			line = strings.TrimSpace(line)
			if after, ok := strings.CutPrefix(line, "// @kernel "); ok {
				names = append(names, strings.TrimSpace(after))
			}
		}
	}
	return names
}

// Compile resolves every declared kernel name against the builder's
// registry and emits the prologue-plus-fragments source. It fails
// ModelStop if any declared kernel name has no registered body — program
// compilation failure is fatal to the current simulation, not the process
// (spec §4.1, §7).
func (b *Builder) Compile() (*Program, error) {
	names := b.KernelNames()
	kernels := make(map[string]kernelreg.Func, len(names))
	for _, name := range names {
		fn, err := b.registry.Lookup(name)
		if err != nil {
			return nil, errs.Wrap(errs.ModelStop, 0, err)
		}
		kernels[name] = fn
	}

	var sb strings.Builder
	for _, name := range sortedKeys(b.constants) {
		fmt.Fprintf(&sb, "#define %s %s\n", name, b.constants[name])
	}
	if b.precision == numeric.Single {
		sb.WriteString("#define HIPIMS_SINGLE 1\n")
	} else {
		sb.WriteString("#define HIPIMS_DOUBLE 1\n")
	}
	for _, f := range b.fragments {
		sb.WriteString(f.text)
		sb.WriteString("\n")
	}

	return &Program{
		Source:    sb.String(),
		Kernels:   kernels,
		Constants: copyMap(b.constants),
		Precision: b.precision,
	}, nil
}

// Program is the compiled result: source text (for diagnostics/logging
// only — it is never re-parsed) plus the resolved kernel function table.
type Program struct {
	Source    string
	Kernels   map[string]kernelreg.Func
	Constants map[string]string
	Precision numeric.Precision
}

// Kernel looks up a compiled kernel's function body by name.
func (p *Program) Kernel(name string) (kernelreg.Func, error) {
	fn, ok := p.Kernels[name]
	if !ok {
		return nil, fmt.Errorf("program: kernel %q was not compiled into this program", name)
	}
	return fn, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
