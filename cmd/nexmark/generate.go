package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	xrate "golang.org/x/time/rate"

	"github.com/fabricekabongo/nexmark"
	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/config"
	"github.com/fabricekabongo/nexmark/internal/sink/kafka"
	"github.com/fabricekabongo/nexmark/internal/sink/rabbitmq"
)

// defaultPace is the output rate without --no-wait.
const defaultPace = 20_000

const publishBatch = 500

type generateFlags struct {
	kind   string
	number int
	offset uint64
	step   uint64
	format string
	noWait bool
	sink   string
}

type publisher interface {
	Publish(context.Context, []event.Event) error
	Close() error
}

func newGenerateCmd(root *rootFlags) *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print or publish generated events",
		Example: `  nexmark generate --number 10 --no-wait
  nexmark generate --type bid --format debug
  nexmark generate --offset 1 --step 4 --number 100
  nexmark generate --sink kafka --number 100000 --no-wait --config nexmark.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, root, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.kind, "type", "t", "all", "Event type: all, person, auction, bid")
	cmd.Flags().IntVarP(&flags.number, "number", "n", -1, "Number of events to emit (forever when negative)")
	cmd.Flags().Uint64Var(&flags.offset, "offset", 0, "First event number")
	cmd.Flags().Uint64Var(&flags.step, "step", 1, "Distance between emitted event numbers")
	cmd.Flags().StringVar(&flags.format, "format", "json", "Print format: json, debug (alias rust)")
	cmd.Flags().BoolVar(&flags.noWait, "no-wait", false, "Emit as fast as possible instead of pacing output")
	cmd.Flags().StringVar(&flags.sink, "sink", "", "Publish to kafka or rabbitmq instead of printing")
	return cmd
}

func runGenerate(cmd *cobra.Command, root *rootFlags, flags *generateFlags) error {
	kind, err := parseKindFilter(flags.kind)
	if err != nil {
		return err
	}
	switch flags.format {
	case "json", "debug":
	case "rust":
		flags.format = "debug"
	default:
		return fmt.Errorf("invalid --format %q", flags.format)
	}
	cfg, logger, err := root.load(cmd)
	if err != nil {
		return err
	}

	gcfg := cfg.Generator.Nexmark()
	if cmd.Flags().Changed("offset") {
		gcfg.Offset = flags.offset
	}
	if cmd.Flags().Changed("step") {
		gcfg.Step = flags.step
	}
	gen, err := nexmark.New(gcfg)
	if err != nil {
		return err
	}

	var limiter *xrate.Limiter
	if !flags.noWait {
		limiter = xrate.NewLimiter(defaultPace, 1)
	}
	src := filtered(gen, kind, flags.number)

	if flags.sink != "" {
		pub, err := newPublisher(flags.sink, cfg)
		if err != nil {
			return err
		}
		defer pub.Close()
		n, err := publishAll(cmd.Context(), pub, src, limiter)
		logger.Info("published", "sink", flags.sink, "events", n)
		return err
	}
	return printAll(cmd.Context(), cmd.OutOrStdout(), src, flags.format, limiter, logger)
}

func parseKindFilter(s string) (event.Kind, error) {
	if s == "all" || s == "" {
		return "", nil
	}
	k := event.Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("invalid --type %q", s)
	}
	return k, nil
}

// filtered yields events of kind (all kinds when empty), at most limit of
// them when limit >= 0.
func filtered(gen *nexmark.EventGenerator, kind event.Kind, limit int) iter.Seq[event.Event] {
	return func(yield func(event.Event) bool) {
		if limit == 0 {
			return
		}
		emitted := 0
		for ev := range gen.All() {
			if kind != "" && ev.Kind() != kind {
				continue
			}
			if !yield(ev) {
				return
			}
			emitted++
			if limit > 0 && emitted >= limit {
				return
			}
		}
	}
}

func printAll(ctx context.Context, out io.Writer, src iter.Seq[event.Event], format string, limiter *xrate.Limiter, logger *log.Logger) error {
	w := bufio.NewWriter(out)
	defer w.Flush()

	for ev := range src {
		if ctx.Err() != nil {
			logger.Debug("generate interrupted")
			return nil
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					logger.Debug("generate interrupted")
					return nil
				}
				return err
			}
		}
		if err := writeEvent(w, ev, format); err != nil {
			return err
		}
		// paced output is flushed line by line
		if limiter != nil {
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeEvent(w io.Writer, ev event.Event, format string) error {
	if format == "debug" {
		_, err := fmt.Fprintln(w, debugString(ev))
		return err
	}
	b, err := event.EncodeJSON(ev.Value())
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// debugString renders a record as Kind { field: value, ... } with JSON
// encoded values.
func debugString(ev event.Event) string {
	m := event.ToMapping(ev.Value())
	parts := make([]string, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		v, _ := json.Marshal(pair.Value)
		parts = append(parts, pair.Key+": "+string(v))
	}
	name := string(ev.Kind())
	name = strings.ToUpper(name[:1]) + name[1:]
	return name + " { " + strings.Join(parts, ", ") + " }"
}

func newPublisher(name string, cfg config.Config) (publisher, error) {
	switch name {
	case "kafka":
		return kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			TopicPrefix: cfg.Kafka.TopicPrefix,
			ClientID:    cfg.Kafka.ClientID,
		})
	case "rabbitmq":
		return rabbitmq.NewPublisher(rabbitmq.PublisherConfig{
			URL:           cfg.RabbitMQ.URL,
			Exchange:      cfg.RabbitMQ.Exchange,
			RoutingShards: cfg.RabbitMQ.RoutingShards,
		})
	}
	return nil, fmt.Errorf("invalid --sink %q", name)
}

func publishAll(ctx context.Context, pub publisher, src iter.Seq[event.Event], limiter *xrate.Limiter) (int, error) {
	batch := make([]event.Event, 0, publishBatch)
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := pub.Publish(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	for ev := range src {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		batch = append(batch, ev)
		if len(batch) == publishBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if ctx.Err() != nil {
		return total, nil
	}
	return total, flush()
}
