package kernelreg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipims/hipims-go/internal/kernelreg"
)

func TestArgLooksUpByName(t *testing.T) {
	ctx := &kernelreg.ExecContext{Args: []kernelreg.ArgView{
		{Name: "a", Data: []byte{1}},
		{Name: "b", Data: []byte{2}},
	}}
	data, ok := ctx.Arg("b")
	require.True(t, ok)
	assert.Equal(t, []byte{2}, data)

	_, ok = ctx.Arg("missing")
	assert.False(t, ok)
}

func TestRegistryLookupUnregisteredFails(t *testing.T) {
	r := kernelreg.NewRegistry()
	_, err := r.Lookup("nope")
	assert.Error(t, err)
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := kernelreg.NewRegistry()
	first := func(ctx *kernelreg.ExecContext) error { return nil }
	second := func(ctx *kernelreg.ExecContext) error { return assert.AnError }

	r.Register("k", first)
	r.Register("k", second)

	fn, err := r.Lookup("k")
	require.NoError(t, err)
	assert.ErrorIs(t, fn(&kernelreg.ExecContext{}), assert.AnError)
}

func TestRegistryNamesListsRegistered(t *testing.T) {
	r := kernelreg.NewRegistry()
	r.Register("one", func(ctx *kernelreg.ExecContext) error { return nil })
	r.Register("two", func(ctx *kernelreg.ExecContext) error { return nil })

	names := r.Names()
	assert.ElementsMatch(t, []string{"one", "two"}, names)
}
