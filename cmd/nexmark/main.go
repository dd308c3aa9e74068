// Command nexmark generates NEXMark events and bridges them to sockets,
// websockets, brokers and an sqlite event log.
//
// Commands:
//   - generate: print events as JSON lines or publish them to kafka/rabbitmq
//   - serve: run the socket and websocket bridges
//   - consume: store events from kafka/rabbitmq in the event log
//   - record, replay: write the stream to the event log and read it back
//   - schema: print the JSON schema of each record kind
//   - bench: measure generator throughput
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fabricekabongo/nexmark/internal/config"
	"github.com/fabricekabongo/nexmark/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "nexmark",
		Short: "NEXMark event generator and bridge",
		Long: `nexmark generates the NEXMark auction benchmark stream (persons, auctions
and bids) and bridges it to framed sockets, websockets, kafka, rabbitmq and an
append-only sqlite event log.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a yaml or toml config file (defaults and NEXMARK_* env when unset)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log.level)")

	cmd.AddCommand(newGenerateCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newConsumeCmd(flags))
	cmd.AddCommand(newRecordCmd(flags))
	cmd.AddCommand(newReplayCmd(flags))
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newBenchCmd(flags))
	return cmd
}

// load reads the config and builds the stderr logger.
func (f *rootFlags) load(cmd *cobra.Command) (config.Config, *log.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if f.logLevel != "" {
		level = f.logLevel
	}
	logger, err := logging.New(cmd.ErrOrStderr(), level)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
