package sigbridge_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AnatoleLucet/sigbridge"
	"github.com/AnatoleLucet/sigbridge/collection"
	"github.com/AnatoleLucet/sigbridge/pubsub"
	"github.com/AnatoleLucet/sigbridge/store"
)

func pageParams(st *store.Store) sigbridge.Params {
	return sigbridge.ArgsFunc(func() []any {
		p, _ := st.Get("page")
		return []any{p}
	})
}

func TestScopeCollectionData(t *testing.T) {
	ctx := context.Background()

	db, err := collection.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	items := db.Collection("items")
	_, err = items.Insert(ctx, map[string]any{"_id": "a", "label": "first"})
	require.NoError(t, err)

	comp := store.NewComponent("list", 2)
	st := comp.Store()

	scope, err := sigbridge.New(comp, sigbridge.Declarations{
		Data: map[string]sigbridge.DataFunc{
			"items": func() (any, error) { return items.Find(nil), nil },
		},
	}, sigbridge.WithFreeze(true))
	require.NoError(t, err)

	comp.Create()
	require.True(t, scope.Active())

	docs := sigbridge.Get[collection.Documents](scope, "items")
	require.Equal(t, []string{"a"}, docs.IDs())
	assert.True(t, docs[0].Frozen())
	assert.ErrorIs(t, docs[0].Set("label", "changed"), collection.ErrFrozen)

	var renders [][]string
	st.Watch(
		func() (any, error) { return st.Get("items") },
		func(v, _ any) { renders = append(renders, v.(collection.Documents).IDs()) },
		store.WatchOptions{Immediate: true},
	)

	_, err = items.Insert(ctx, map[string]any{"_id": "b", "label": "second"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a"}, {"a", "b"}}, renders)

	comp.Destroy()
	assert.False(t, scope.Active())

	_, err = items.Insert(ctx, map[string]any{"_id": "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sigbridge.Get[collection.Documents](scope, "items").IDs())
}

func TestScopeCrossfade(t *testing.T) {
	setup := func(t *testing.T, opts ...pubsub.Option) (*store.Component, *sigbridge.Scope, *pubsub.Transport) {
		transport := pubsub.New(opts...)
		comp := store.NewComponent("paged", 2)
		_, err := comp.Store().Define("page", 1)
		require.NoError(t, err)

		scope, err := sigbridge.New(comp, sigbridge.Declarations{
			Subscribe: map[string]sigbridge.Params{"list": pageParams(comp.Store())},
		}, sigbridge.WithSubscribe(transport.Subscribe))
		require.NoError(t, err)

		comp.Create()
		return comp, scope, transport
	}

	t.Run("previous subscription stops once the new one is ready", func(t *testing.T) {
		comp, scope, transport := setup(t)

		page1 := transport.Find("list", 1)
		require.NotNil(t, page1)
		assert.False(t, scope.SubscriptionReady("list"))

		page1.MarkReady()
		assert.True(t, scope.SubscriptionReady("list"))

		require.NoError(t, comp.Store().Set("page", 2))
		page2 := transport.Find("list", 2)
		require.NotNil(t, page2)

		assert.False(t, scope.SubscriptionReady("list"))
		assert.False(t, page1.Stopped())

		slot, ok := scope.Slot("list")
		require.True(t, ok)
		assert.Equal(t, sigbridge.SlotReplacing, slot.State())
		assert.Same(t, page2, slot.Current())
		assert.Len(t, slot.Previous(), 1)

		page2.MarkReady()
		assert.True(t, scope.SubscriptionReady("list"))
		assert.Equal(t, 1, page1.StopCount())
		assert.False(t, page2.Stopped())
		assert.Equal(t, sigbridge.SlotSteady, slot.State())

		// readiness flapping does not stop anything again
		page2.MarkUnready()
		page2.MarkReady()
		assert.Equal(t, 1, page1.StopCount())

		comp.Destroy()
		assert.Equal(t, 1, page1.StopCount())
		assert.Equal(t, 1, page2.StopCount())
	})

	t.Run("previous subscription is kept while the new one is never ready", func(t *testing.T) {
		comp, _, transport := setup(t)

		page1 := transport.Find("list", 1)
		page1.MarkReady()

		require.NoError(t, comp.Store().Set("page", 2))
		require.NoError(t, comp.Store().Set("page", 3))

		page2 := transport.Find("list", 2)
		page3 := transport.Find("list", 3)
		assert.False(t, page1.Stopped())
		assert.False(t, page2.Stopped())

		page3.MarkReady()
		assert.Equal(t, 1, page1.StopCount())
		assert.Equal(t, 1, page2.StopCount())

		comp.Destroy()
		assert.Equal(t, 1, page3.StopCount())
	})

	t.Run("never ready subscriptions are released on teardown", func(t *testing.T) {
		comp, _, transport := setup(t)

		require.NoError(t, comp.Store().Set("page", 2))
		page1 := transport.Find("list", 1)
		assert.False(t, page1.Stopped())

		comp.Destroy()
		assert.Equal(t, 1, page1.StopCount())
		assert.Equal(t, 1, transport.Find("list", 2).StopCount())
		assert.Empty(t, transport.Active())
	})

	t.Run("same params do not resubscribe", func(t *testing.T) {
		comp, _, transport := setup(t)

		require.NoError(t, comp.Store().Set("page", 1))
		assert.Len(t, transport.All(), 1)
	})

	t.Run("handles without readiness are ready at once", func(t *testing.T) {
		comp := store.NewComponent("paged", 2)
		st := comp.Store()
		_, err := st.Define("page", 1)
		require.NoError(t, err)

		transport := pubsub.New(pubsub.WithoutReadiness())
		_, err = sigbridge.New(comp, sigbridge.Declarations{
			Subscribe: map[string]sigbridge.Params{"list": pageParams(st)},
		}, sigbridge.WithSubscribe(transport.Subscribe))
		require.NoError(t, err)

		var seen []map[string]bool
		st.Watch(
			func() (any, error) { return st.Get(sigbridge.SubReadyKey) },
			func(v, _ any) { seen = append(seen, v.(map[string]bool)) },
			store.WatchOptions{Immediate: true},
		)

		comp.Create()
		require.NoError(t, st.Set("page", 2))

		for _, ready := range seen {
			for key, v := range ready {
				assert.True(t, v, "%s went through not ready", key)
			}
		}
		assert.Equal(t, map[string]bool{"list": true}, seen[len(seen)-1])

		// replaced at once
		assert.Equal(t, 1, transport.Find("list", 1).StopCount())
		assert.False(t, transport.Find("list", 2).Stopped())
	})
}

func TestScopeParamData(t *testing.T) {
	comp := store.NewComponent("paged", 2)
	st := comp.Store()
	_, err := st.Define("page", 1)
	require.NoError(t, err)

	tick := sigbridge.NewSignal(0)
	runs := map[any]int{}

	scope, err := sigbridge.New(comp, sigbridge.Declarations{
		ParamData: map[string]sigbridge.ParamData{
			"view": {
				Params: func() any {
					p, _ := st.Get("page")
					return p
				},
				Update: func(p any) (any, error) {
					runs[p]++
					return fmt.Sprintf("%v-%d", p, tick.Read()), nil
				},
			},
		},
	})
	require.NoError(t, err)
	comp.Create()

	var cells []*sigbridge.Cell
	first, _ := scope.Cell("view")
	cells = append(cells, first)

	for p := 2; p <= 5; p++ {
		require.NoError(t, st.Set("page", p))
		c, _ := scope.Cell("view")
		cells = append(cells, c)
	}

	tick.Write(1)

	assert.Equal(t, map[any]int{1: 1, 2: 1, 3: 1, 4: 1, 5: 2}, runs)
	assert.Equal(t, "5-1", sigbridge.Get[string](scope, "view"))

	for _, c := range cells[:len(cells)-1] {
		assert.True(t, c.Stopped())
	}
	assert.False(t, cells[len(cells)-1].Stopped())

	live := 0
	for _, item := range scope.Registry().Items() {
		if _, ok := item.(*sigbridge.Cell); ok {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestScopeRebindStopsPreviousCell(t *testing.T) {
	comp := store.NewComponent("rebind", 2)
	scope, err := sigbridge.New(comp, sigbridge.Declarations{})
	require.NoError(t, err)
	comp.Create()

	count := sigbridge.NewSignal(1)
	runs := []string{}

	_, err = scope.AddReactiveData("value", func() (any, error) {
		runs = append(runs, fmt.Sprintf("a %d", count.Read()))
		return "a", nil
	})
	require.NoError(t, err)

	unbind, err := scope.AddReactiveData("value", func() (any, error) {
		runs = append(runs, fmt.Sprintf("b %d", count.Read()))
		return "b", nil
	})
	require.NoError(t, err)

	count.Write(2)
	assert.Equal(t, []string{"a 1", "b 1", "b 2"}, runs)
	assert.Equal(t, "b", sigbridge.Get[string](scope, "value"))

	v, err := comp.Store().Get("value")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	unbind()
	count.Write(3)
	assert.Len(t, runs, 3)
	assert.Equal(t, 0, scope.Registry().Len())
}

func TestScopeErrors(t *testing.T) {
	t.Run("failing data keeps its last value and reports once per run", func(t *testing.T) {
		comp := store.NewComponent("failing", 2)
		st := comp.Store()
		_, err := st.Define("unrelated", 0)
		require.NoError(t, err)

		n := sigbridge.NewSignal(1)
		fail := sigbridge.NewSignal(false)
		var reported []string

		scope, err := sigbridge.New(comp, sigbridge.Declarations{
			Data: map[string]sigbridge.DataFunc{
				"value": func() (any, error) {
					v := n.Read()
					if fail.Read() {
						return nil, fmt.Errorf("broken at %d", v)
					}
					return v, nil
				},
			},
		}, sigbridge.WithErrorHandler(func(key string, err error) {
			reported = append(reported, key+": "+err.Error())
		}))
		require.NoError(t, err)
		comp.Create()

		fail.Write(true)
		assert.Equal(t, 1, sigbridge.Get[int](scope, "value"))
		assert.Equal(t, []string{"value: broken at 1"}, reported)

		require.NoError(t, st.Set("unrelated", 5))
		assert.Len(t, reported, 1)

		n.Write(2)
		assert.Equal(t, []string{"value: broken at 1", "value: broken at 2"}, reported)

		fail.Write(false)
		assert.Equal(t, 2, sigbridge.Get[int](scope, "value"))
		assert.Len(t, reported, 2)
	})

	t.Run("errors are logged without a handler", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		comp := store.NewComponent("logged", 2)

		_, err := sigbridge.New(comp, sigbridge.Declarations{
			Data: map[string]sigbridge.DataFunc{
				"value": func() (any, error) { return nil, errors.New("no data") },
			},
		}, sigbridge.WithLogger(zap.New(core)))
		require.NoError(t, err)
		comp.Create()

		entries := logs.FilterMessage("reactive data failed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "value", entries[0].ContextMap()["key"])
		assert.Equal(t, "logged", entries[0].ContextMap()["scope"])
	})

	t.Run("missing subscribe function is reported", func(t *testing.T) {
		comp := store.NewComponent("nosub", 2)
		var got []error

		_, err := sigbridge.New(comp, sigbridge.Declarations{
			Subscribe: map[string]sigbridge.Params{"list": sigbridge.Args()},
		}, sigbridge.WithErrorHandler(func(_ string, err error) { got = append(got, err) }))
		require.NoError(t, err)
		comp.Create()

		require.Len(t, got, 1)
		assert.True(t, sigbridge.IsConfigError(got[0]))
	})

	t.Run("panicking params reach the handler", func(t *testing.T) {
		comp := store.NewComponent("params", 2)
		st := comp.Store()
		_, err := st.Define("page", 1)
		require.NoError(t, err)

		params := func() any {
			p, _ := st.Get("page")
			if p.(int) < 0 {
				panic(fmt.Sprintf("bad page %v", p))
			}
			return p
		}

		transport := pubsub.New()
		var reported []string

		_, err = sigbridge.New(comp, sigbridge.Declarations{
			Subscribe: map[string]sigbridge.Params{
				"list": sigbridge.ArgsFunc(func() []any { return []any{params()} }),
			},
			ParamData: map[string]sigbridge.ParamData{
				"view": {
					Params: params,
					Update: func(p any) (any, error) { return p, nil },
				},
			},
		}, sigbridge.WithSubscribe(transport.Subscribe), sigbridge.WithErrorHandler(func(key string, err error) {
			reported = append(reported, key+": "+err.Error())
		}))
		require.NoError(t, err)
		comp.Create()
		assert.Empty(t, reported)

		require.NoError(t, st.Set("page", -1))
		require.Len(t, reported, 2)
		assert.Contains(t, reported[0], "bad page -1")
		assert.Contains(t, reported[1], "bad page -1")
		assert.ElementsMatch(t, []string{"list", "view"}, []string{
			reported[0][:strings.Index(reported[0], ":")],
			reported[1][:strings.Index(reported[1], ":")],
		})
		assert.Len(t, transport.All(), 1)
	})

	t.Run("panicking params fail the first run", func(t *testing.T) {
		comp := store.NewComponent("params", 2)
		var reported []string

		scope, err := sigbridge.New(comp, sigbridge.Declarations{
			ParamData: map[string]sigbridge.ParamData{
				"view": {
					Params: func() any { panic("boom") },
					Update: func(p any) (any, error) { return p, nil },
				},
			},
		}, sigbridge.WithSubscribe(pubsub.New().Subscribe), sigbridge.WithErrorHandler(func(key string, err error) {
			reported = append(reported, key+": "+err.Error())
		}))
		require.NoError(t, err)
		comp.Create()

		require.Len(t, reported, 1)
		assert.True(t, strings.HasPrefix(reported[0], "view: "))
		assert.Contains(t, reported[0], "boom")

		_, err = scope.AddSubscription("list", sigbridge.ArgsFunc(func() []any { panic("boom") }))
		assert.ErrorContains(t, err, "boom")
		assert.Len(t, reported, 1)
	})

	t.Run("server rendering recovers panicking params", func(t *testing.T) {
		comp := store.NewComponent("params", 2, store.WithServer())
		var got []error

		_, err := sigbridge.New(comp, sigbridge.Declarations{
			Subscribe: map[string]sigbridge.Params{
				"list": sigbridge.ArgsFunc(func() []any { panic("boom") }),
			},
		}, sigbridge.WithSubscribe(pubsub.New().Subscribe), sigbridge.WithSSR(true),
			sigbridge.WithErrorHandler(func(_ string, err error) { got = append(got, err) }))
		require.NoError(t, err)
		comp.Create()

		require.Len(t, got, 1)
		var perr *sigbridge.PanicError
		require.ErrorAs(t, got[0], &perr)
		assert.Equal(t, "boom", perr.Value)
	})

	t.Run("uncomparable handles are refused", func(t *testing.T) {
		comp := store.NewComponent("handles", 2)
		stops := 0

		scope, err := sigbridge.New(comp, sigbridge.Declarations{}, sigbridge.WithSubscribe(
			func(string, ...any) sigbridge.Handle { return sliceHandle{&stops} },
		))
		require.NoError(t, err)
		comp.Create()

		_, err = scope.Subscribe("feed")
		assert.True(t, sigbridge.IsConfigError(err))
		assert.Equal(t, 1, stops)

		sl, ok := scope.Slot("feed")
		require.True(t, ok)
		assert.Nil(t, sl.Current())
	})
}

// sliceHandle is not comparable.
type sliceHandle []*int

func (h sliceHandle) Stop() { *h[0]++ }

func TestScopeDeclarationErrors(t *testing.T) {
	data := func() (any, error) { return nil, nil }

	tests := []struct {
		name  string
		setup func(st *store.Store)
		decl  sigbridge.Declarations
		code  sigbridge.ErrorCode
	}{
		{
			name:  "collides with a host field",
			setup: func(st *store.Store) { st.Define("items", nil) },
			decl:  sigbridge.Declarations{Data: map[string]sigbridge.DataFunc{"items": data}},
			code:  sigbridge.ErrCodeDuplicateKey,
		},
		{
			name:  "collides with the readiness key",
			setup: func(st *store.Store) { st.Define(sigbridge.SubReadyKey, nil) },
			decl:  sigbridge.Declarations{},
			code:  sigbridge.ErrCodeDuplicateKey,
		},
		{
			name: "declared twice",
			decl: sigbridge.Declarations{
				Data:     map[string]sigbridge.DataFunc{"items": data},
				Computed: map[string]sigbridge.DataFunc{"items": data},
			},
			code: sigbridge.ErrCodeDuplicateKey,
		},
		{
			name: "missing function",
			decl: sigbridge.Declarations{Data: map[string]sigbridge.DataFunc{"items": nil}},
			code: sigbridge.ErrCodeMissingFunction,
		},
		{
			name: "missing update function",
			decl: sigbridge.Declarations{ParamData: map[string]sigbridge.ParamData{"items": {}}},
			code: sigbridge.ErrCodeMissingFunction,
		},
		{
			name: "reserved key",
			decl: sigbridge.Declarations{Data: map[string]sigbridge.DataFunc{"$items": data}},
			code: sigbridge.ErrCodeReservedKey,
		},
		{
			name: "subscription without a name",
			decl: sigbridge.Declarations{Subscribe: map[string]sigbridge.Params{"": sigbridge.Args()}},
			code: sigbridge.ErrCodeMissingName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := store.NewComponent("decl", 2)
			if tt.setup != nil {
				tt.setup(comp.Store())
			}

			_, err := sigbridge.New(comp, tt.decl)

			var cfgErr *sigbridge.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.code, cfgErr.Code)
		})
	}

	t.Run("unsupported host version", func(t *testing.T) {
		_, err := sigbridge.New(store.NewComponent("decl", 4), sigbridge.Declarations{})

		var cfgErr *sigbridge.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, sigbridge.ErrCodeUnsupportedHost, cfgErr.Code)
	})

	t.Run("runtime keys collide too", func(t *testing.T) {
		comp := store.NewComponent("decl", 2)
		comp.Store().Define("taken", 1)

		scope, err := sigbridge.New(comp, sigbridge.Declarations{})
		require.NoError(t, err)

		_, err = scope.AddReactiveData("taken", data)
		assert.True(t, sigbridge.IsDuplicateKey(err))

		_, err = scope.AddReactiveData("", data)
		assert.True(t, sigbridge.IsConfigError(err))

		_, err = scope.Subscribe("")
		assert.True(t, sigbridge.IsConfigError(err))
	})
}

func TestScopeTeardown(t *testing.T) {
	comp := store.NewComponent("teardown", 2)
	transport := pubsub.New()
	count := sigbridge.NewSignal(0)
	core, logs := observer.New(zap.WarnLevel)

	scope, err := sigbridge.New(comp, sigbridge.Declarations{
		Subscribe: map[string]sigbridge.Params{
			"a": sigbridge.Args(1),
			"b": sigbridge.Args(2),
		},
		Data: map[string]sigbridge.DataFunc{
			"value": func() (any, error) { return count.Read(), nil },
		},
	}, sigbridge.WithSubscribe(transport.Subscribe), sigbridge.WithLogger(zap.New(core)))
	require.NoError(t, err)
	comp.Create()

	runs := 0
	auto, err := scope.Autorun(func(*sigbridge.Computation) error {
		count.Read()
		runs++
		return nil
	})
	require.NoError(t, err)

	transport.Last("a").FailStop(errors.New("connection lost"))
	cell, _ := scope.Cell("value")

	err = scope.Stop()
	assert.ErrorContains(t, err, "connection lost")

	for _, sub := range transport.All() {
		assert.Equal(t, 1, sub.StopCount(), sub.Name())
	}
	assert.True(t, cell.Stopped())
	assert.True(t, auto.Stopped())
	assert.Equal(t, 0, scope.Registry().Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to stop reactive item").Len())

	count.Write(1)
	assert.Equal(t, 1, runs)

	// a second stop finds nothing left
	assert.NoError(t, scope.Stop())
	comp.Destroy()
	for _, sub := range transport.All() {
		assert.Equal(t, 1, sub.StopCount(), sub.Name())
	}
}

func TestScopeRestart(t *testing.T) {
	comp := store.NewComponent("restart", 2)
	transport := pubsub.New()
	generation := 0
	failing := false
	var reported []string

	scope, err := sigbridge.New(comp, sigbridge.Declarations{
		Lazy: true,
		Data: map[string]sigbridge.DataFunc{
			"gen": func() (any, error) {
				if failing {
					return nil, errors.New("unavailable")
				}
				generation++
				return generation, nil
			},
		},
		Subscribe: map[string]sigbridge.Params{"feed": sigbridge.Args("x")},
	}, sigbridge.WithSubscribe(transport.Subscribe), sigbridge.WithErrorHandler(func(key string, err error) {
		reported = append(reported, key+": "+err.Error())
	}))
	require.NoError(t, err)

	comp.Create()
	assert.False(t, scope.Active())
	assert.Empty(t, transport.All())

	require.NoError(t, scope.Start())
	assert.Equal(t, 1, sigbridge.Get[int](scope, "gen"))
	assert.Len(t, transport.Active(), 1)

	assert.True(t, sigbridge.IsScopeActive(scope.Start()))

	transport.Last("feed").MarkReady()
	assert.Equal(t, map[string]bool{"feed": true}, scope.Ready())

	require.NoError(t, scope.Stop())
	assert.Empty(t, transport.Active())
	assert.Empty(t, scope.Ready())
	assert.False(t, scope.SubscriptionReady("feed"))

	require.NoError(t, scope.Start())
	assert.Equal(t, 2, sigbridge.Get[int](scope, "gen"))
	assert.Len(t, transport.All(), 2)
	assert.Len(t, transport.Active(), 1)
	assert.Equal(t, map[string]bool{"feed": false}, scope.Ready())

	// a restart whose first run fails shows no stale value
	require.NoError(t, scope.Stop())
	failing = true
	require.NoError(t, scope.Start())

	v, _ := scope.Data("gen")
	assert.Nil(t, v)
	assert.Equal(t, []string{"gen: unavailable"}, reported)
	assert.Equal(t, 2, generation)

	comp.Destroy()
	assert.Empty(t, transport.Active())
}

func TestScopeServer(t *testing.T) {
	setup := func(t *testing.T, noSSR bool) (*store.Component, *pubsub.Transport) {
		comp := store.NewComponent("ssr", 2, store.WithServer())
		st := comp.Store()
		_, err := st.Define("page", 1)
		require.NoError(t, err)

		transport := pubsub.New()
		_, err = sigbridge.New(comp, sigbridge.Declarations{
			NoSSR:     noSSR,
			Subscribe: map[string]sigbridge.Params{"list": pageParams(st)},
		}, sigbridge.WithSubscribe(transport.Subscribe))
		require.NoError(t, err)

		comp.Create()
		return comp, transport
	}

	t.Run("params are read once", func(t *testing.T) {
		comp, transport := setup(t, false)
		require.Len(t, transport.All(), 1)

		require.NoError(t, comp.Store().Set("page", 2))
		assert.Len(t, transport.All(), 1)
	})

	t.Run("no ssr skips the declarations", func(t *testing.T) {
		_, transport := setup(t, true)
		assert.Empty(t, transport.All())
	})

	t.Run("ssr disabled by option", func(t *testing.T) {
		comp := store.NewComponent("ssr", 2, store.WithServer())
		transport := pubsub.New()

		_, err := sigbridge.New(comp, sigbridge.Declarations{
			Subscribe: map[string]sigbridge.Params{"list": sigbridge.Args()},
		}, sigbridge.WithSubscribe(transport.Subscribe), sigbridge.WithSSR(false))
		require.NoError(t, err)
		comp.Create()

		assert.Empty(t, transport.All())
	})
}

func TestScopeHostVersions(t *testing.T) {
	for _, version := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			comp := store.NewComponent("versioned", version)
			transport := pubsub.New()
			count := sigbridge.NewSignal(1)

			scope, err := sigbridge.New(comp, sigbridge.Declarations{
				Data: map[string]sigbridge.DataFunc{
					"value": func() (any, error) { return count.Read(), nil },
				},
				Subscribe: map[string]sigbridge.Params{"feed": sigbridge.Args()},
			}, sigbridge.WithSubscribe(transport.Subscribe))
			require.NoError(t, err)

			comp.Create()
			assert.True(t, scope.Active())
			assert.Equal(t, 1, sigbridge.Get[int](scope, "value"))

			comp.Destroy()
			assert.False(t, scope.Active())
			assert.Empty(t, transport.Active())

			count.Write(2)
			assert.Equal(t, 1, sigbridge.Get[int](scope, "value"))
		})
	}
}

func TestScopeComputed(t *testing.T) {
	comp := store.NewComponent("computed", 2)
	st := comp.Store()
	_, err := st.Define("n", 1)
	require.NoError(t, err)

	count := sigbridge.NewSignal(10)
	scope, err := sigbridge.New(comp, sigbridge.Declarations{
		Computed: map[string]sigbridge.DataFunc{
			"total": func() (any, error) {
				n, _ := st.Get("n")
				return count.Read() + n.(int), nil
			},
		},
	})
	require.NoError(t, err)
	comp.Create()

	var seen []any
	st.Watch(
		func() (any, error) { return st.Get("total") },
		func(v, _ any) { seen = append(seen, v) },
		store.WatchOptions{Immediate: true},
	)

	count.Write(20)
	require.NoError(t, st.Set("n", 2))

	assert.Equal(t, []any{11, 21, 22}, seen)

	cell, ok := scope.Cell("total")
	require.True(t, ok)
	assert.Equal(t, sigbridge.ModeMirrored, cell.Mode())

	comp.Destroy()
	assert.True(t, cell.Stopped())
	count.Write(30)

	v, err := st.Get("total")
	require.NoError(t, err)
	assert.Equal(t, 22, v)
}

func TestScopeAddComputed(t *testing.T) {
	comp := store.NewComponent("computed", 2)
	scope, err := sigbridge.New(comp, sigbridge.Declarations{})
	require.NoError(t, err)
	comp.Create()

	count := sigbridge.NewSignal(2)
	require.NoError(t, scope.AddComputed("double", func() (any, error) {
		return count.Read() * 2, nil
	}))

	v, _ := comp.Store().Get("double")
	assert.Equal(t, 4, v)

	count.Write(3)
	v, _ = comp.Store().Get("double")
	assert.Equal(t, 6, v)

	assert.True(t, sigbridge.IsDuplicateKey(scope.AddComputed("double", func() (any, error) { return nil, nil })))
}

func TestScopeSubscriptions(t *testing.T) {
	t.Run("subscribe replaces with crossfade", func(t *testing.T) {
		comp := store.NewComponent("subs", 2)
		transport := pubsub.New()

		scope, err := sigbridge.New(comp, sigbridge.Declarations{}, sigbridge.WithSubscribe(transport.Subscribe))
		require.NoError(t, err)
		comp.Create()

		first, err := scope.Subscribe("feed", 1)
		require.NoError(t, err)
		second, err := scope.Subscribe("feed", 2)
		require.NoError(t, err)

		sub1 := first.(*pubsub.Subscription)
		sub2 := second.(*pubsub.Subscription)
		assert.False(t, sub1.Stopped())

		sub2.MarkReady()
		assert.True(t, sub1.Stopped())
		assert.Equal(t, map[string]bool{"feed": true}, scope.Ready())
		assert.True(t, scope.AllReady())
	})

	t.Run("stop handle", func(t *testing.T) {
		comp := store.NewComponent("subs", 2)
		transport := pubsub.New()

		scope, err := sigbridge.New(comp, sigbridge.Declarations{}, sigbridge.WithSubscribe(transport.Subscribe))
		require.NoError(t, err)
		comp.Create()

		first, _ := scope.Subscribe("feed", 1)
		second, _ := scope.Subscribe("feed", 2)

		// retiring a waiting handle early
		require.NoError(t, scope.StopHandle(first))
		assert.True(t, first.(*pubsub.Subscription).Stopped())
		assert.False(t, second.(*pubsub.Subscription).Stopped())

		require.NoError(t, scope.StopHandle(second))
		assert.Equal(t, 1, second.(*pubsub.Subscription).StopCount())
		_, ok := scope.Slot("feed")
		assert.False(t, ok)

		comp.Destroy()
		assert.Equal(t, 1, first.(*pubsub.Subscription).StopCount())
		assert.Equal(t, 1, second.(*pubsub.Subscription).StopCount())
	})

	t.Run("unsubscribe", func(t *testing.T) {
		comp := store.NewComponent("subs", 2)
		st := comp.Store()
		_, err := st.Define("page", 1)
		require.NoError(t, err)
		transport := pubsub.New()

		scope, err := sigbridge.New(comp, sigbridge.Declarations{}, sigbridge.WithSubscribe(transport.Subscribe))
		require.NoError(t, err)
		comp.Create()

		unsubscribe, err := scope.AddSubscription("list", pageParams(st))
		require.NoError(t, err)

		assert.Contains(t, scope.Ready(), "list")

		unsubscribe()
		assert.Empty(t, transport.Active())
		assert.Empty(t, scope.Ready())

		require.NoError(t, st.Set("page", 2))
		assert.Len(t, transport.All(), 1)
	})

	t.Run("autorun handle", func(t *testing.T) {
		comp := store.NewComponent("subs", 2)
		scope, err := sigbridge.New(comp, sigbridge.Declarations{})
		require.NoError(t, err)
		comp.Create()

		count := sigbridge.NewSignal(0)
		runs := 0
		c, err := scope.Autorun(func(*sigbridge.Computation) error {
			count.Read()
			runs++
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, scope.StopHandle(c))
		count.Write(1)

		assert.True(t, c.Stopped())
		assert.Equal(t, 1, runs)
		assert.Equal(t, 0, scope.Registry().Len())
	})
}

func TestInstall(t *testing.T) {
	t.Cleanup(sigbridge.ResetInstall)

	transport := pubsub.New()
	sigbridge.Install(sigbridge.WithSubscribe(transport.Subscribe), sigbridge.WithFreeze(true))

	comp := store.NewComponent("installed", 2)
	scope, err := sigbridge.New(comp, sigbridge.Declarations{
		Subscribe: map[string]sigbridge.Params{"feed": sigbridge.Args()},
	})
	require.NoError(t, err)
	comp.Create()

	assert.True(t, scope.Options().Freeze)
	assert.Len(t, transport.All(), 1)
}
