package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AnatoleLucet/sigbridge"
	"github.com/AnatoleLucet/sigbridge/collection"
	"github.com/AnatoleLucet/sigbridge/config"
	"github.com/AnatoleLucet/sigbridge/pubsub"
	"github.com/AnatoleLucet/sigbridge/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Pages    int
}

// TraceEvent is the state of the traced scope after one step.
type TraceEvent struct {
	Step   int      `json:"step"`
	Event  string   `json:"event"`
	Page   int      `json:"page"`
	Ready  bool     `json:"ready"`
	Items  []string `json:"items"`
	Active []string `json:"active"`
	Stops  int      `json:"stops"`
}

func (e TraceEvent) String() string {
	return fmt.Sprintf("%d %-14s page=%d ready=%t items=[%s] active=[%s] stops=%d",
		e.Step, e.Event, e.Page, e.Ready,
		strings.Join(e.Items, " "),
		strings.Join(e.Active, " "),
		e.Stops)
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace a paginated subscription through its crossfades",
		Long: `Run a component that subscribes to one page of a list and fetches the
matching documents, then walk it through page changes.

Each line shows the scope after one step: the readiness of the list
subscription, the fetched items, the subscriptions still open and how
many were stopped. A page's subscription stays open until the next
page's subscription is ready.

Examples:
  sigbridge trace
  sigbridge trace --pages 3 --format json
  sigbridge trace --db ./trace.db`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			sigbridge.SetLogger(log)
			defer sigbridge.SetLogger(nil)

			events, err := RunTrace(cmd.Context(), opts.Database, opts.Pages, cfg, log)
			if err != nil {
				return err
			}

			return writeTrace(cmd.OutOrStdout(), opts.Format, events)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", ":memory:", "SQLite database path")
	cmd.Flags().IntVar(&opts.Pages, "pages", 2, "number of pages to walk through")

	return cmd
}

// RunTrace runs the traced scenario and returns its events.
func RunTrace(ctx context.Context, dbPath string, pages int, cfg *config.Config, log *zap.Logger) ([]TraceEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if pages < 1 {
		return nil, fmt.Errorf("pages must be at least 1, got %d", pages)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	// every computation of the run lives on this goroutine's runtime
	defer sigbridge.ReleaseRuntime()

	db, err := collection.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	items := db.Collection("items")
	for page := 1; page <= pages; page++ {
		for _, suffix := range []string{"a", "b"} {
			id := fmt.Sprintf("p%d%s", page, suffix)
			if _, err := items.Insert(ctx, map[string]any{"_id": id, "page": page}); err != nil {
				return nil, err
			}
		}
	}

	transport := pubsub.New(pubsub.WithLogger(log))
	comp := store.NewComponent("trace", 2)
	st := comp.Store()
	if _, err := st.Define("page", 1); err != nil {
		return nil, err
	}

	page := func() any {
		v, _ := st.Get("page")
		return v
	}

	var failures []error
	scope, err := sigbridge.New(comp, sigbridge.Declarations{
		Subscribe: map[string]sigbridge.Params{
			"list": sigbridge.ArgsFunc(func() []any { return []any{page()} }),
		},
		ParamData: map[string]sigbridge.ParamData{
			"items": {
				Params: page,
				Update: func(p any) (any, error) {
					return items.Find(collection.Selector{"page": p}), nil
				},
			},
		},
	},
		sigbridge.WithConfig(cfg),
		sigbridge.WithSubscribe(transport.Subscribe),
		sigbridge.WithLogger(log),
		sigbridge.WithErrorHandler(func(key string, err error) {
			failures = append(failures, fmt.Errorf("%s: %w", key, err))
		}),
	)
	if err != nil {
		return nil, err
	}

	var events []TraceEvent
	record := func(event string) {
		e := TraceEvent{
			Step:  len(events) + 1,
			Event: event,
			Ready: scope.SubscriptionReady("list"),
		}
		e.Page, _ = page().(int)

		for _, doc := range sigbridge.Get[collection.Documents](scope, "items") {
			e.Items = append(e.Items, doc.ID())
		}

		for _, sub := range transport.All() {
			e.Stops += sub.StopCount()
			if !sub.Stopped() {
				e.Active = append(e.Active, label(sub))
			}
		}

		events = append(events, e)
	}

	comp.Create()
	record("created")

	markReady := func() error {
		sub := transport.Last("list")
		if sub == nil {
			return errors.New("the list subscription was not opened")
		}
		sub.MarkReady()
		record("ready " + label(sub))
		return nil
	}

	if err := markReady(); err != nil {
		return events, err
	}
	for p := 2; p <= pages; p++ {
		if err := st.Set("page", p); err != nil {
			return nil, err
		}
		record(fmt.Sprintf("page %d", p))
		if err := markReady(); err != nil {
			return events, err
		}
	}

	if _, err := items.Insert(ctx, map[string]any{"_id": fmt.Sprintf("p%dc", pages), "page": pages}); err != nil {
		return nil, err
	}
	record("insert")

	comp.Destroy()
	record("destroyed")

	if len(failures) > 0 {
		return events, failures[0]
	}
	return events, nil
}

func label(sub *pubsub.Subscription) string {
	args := make([]string, len(sub.Args()))
	for i, a := range sub.Args() {
		args[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("%s(%s)", sub.Name(), strings.Join(args, ","))
}

func writeTrace(w io.Writer, format string, events []TraceEvent) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	for _, e := range events {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return err
		}
	}
	return nil
}
