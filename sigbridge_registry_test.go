package sigbridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type funcStopper func()

func (f funcStopper) Stop() { f() }

type failingReleaser struct {
	err   error
	calls int
}

func (f *failingReleaser) Stop() { _ = f.Release() }

func (f *failingReleaser) Release() error {
	f.calls++
	return f.err
}

func TestRegistry(t *testing.T) {
	t.Run("stops in insertion order", func(t *testing.T) {
		log := []string{}

		r := NewRegistry(zap.NewNop())
		require.NoError(t, r.Start())

		r.Register(StopFunc(func() { log = append(log, "a") }))
		r.Register(StopFunc(func() { log = append(log, "b") }))
		r.Register(StopFunc(func() { log = append(log, "c") }))

		require.NoError(t, r.StopAll())

		assert.Equal(t, []string{"a", "b", "c"}, log)
		assert.Equal(t, 0, r.Len())
		assert.False(t, r.Active())
	})

	t.Run("keeps stopping after failures", func(t *testing.T) {
		log := []string{}
		core, logs := observer.New(zap.WarnLevel)

		broken := &failingReleaser{err: errors.New("already closed")}

		r := NewRegistry(zap.New(core))
		r.Register(StopFunc(func() { log = append(log, "a") }))
		r.Register(StopFunc(func() { panic("broken handle") }))
		r.Register(broken)
		r.Register(StopFunc(func() { log = append(log, "d") }))

		err := r.StopAll()
		require.Error(t, err)

		errs := multierr.Errors(err)
		require.Len(t, errs, 2)

		var perr *PanicError
		require.ErrorAs(t, errs[0], &perr)
		assert.Equal(t, "broken handle", perr.Value)
		assert.EqualError(t, errs[1], "already closed")

		assert.Equal(t, []string{"a", "d"}, log)
		assert.Equal(t, 1, broken.calls)
		assert.Equal(t, 2, logs.FilterMessage("failed to stop reactive item").Len())
	})

	t.Run("items stopped by other items are stopped once", func(t *testing.T) {
		r := NewRegistry(zap.NewNop())
		stops := 0

		second := StopFunc(func() { stops++ })
		first := StopFunc(func() { r.Stop(second) })

		r.Register(first)
		r.Register(second)

		require.NoError(t, r.StopAll())
		assert.Equal(t, 1, stops)
	})

	t.Run("unregister by identity", func(t *testing.T) {
		r := NewRegistry(zap.NewNop())

		a := StopFunc(func() {})
		b := StopFunc(func() {})
		r.Register(a)
		r.Register(b)

		assert.True(t, r.Has(a))
		assert.True(t, r.Unregister(a))
		assert.False(t, r.Unregister(a))
		assert.False(t, r.Has(a))
		assert.Equal(t, []Stoppable{b}, r.Items())
	})

	t.Run("uncomparable items are rejected", func(t *testing.T) {
		r := NewRegistry(zap.NewNop())
		stops := 0

		f := funcStopper(func() { stops++ })
		assert.PanicsWithValue(t,
			"sigbridge: cannot register sigbridge.funcStopper: reactive items must be comparable",
			func() { r.Register(f) })
		assert.Equal(t, 0, r.Len())

		require.NoError(t, r.StopAll())
		assert.Equal(t, 0, stops)
	})

	t.Run("stop forgets and stops", func(t *testing.T) {
		r := NewRegistry(zap.NewNop())
		stops := 0

		a := StopFunc(func() { stops++ })
		r.Register(a)

		require.NoError(t, r.Stop(a))
		assert.Equal(t, 1, stops)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("start twice fails", func(t *testing.T) {
		r := NewRegistry(nil)

		require.NoError(t, r.Start())
		err := r.Start()
		assert.True(t, IsScopeActive(err))

		require.NoError(t, r.StopAll())
		assert.NoError(t, r.Start())
	})
}
