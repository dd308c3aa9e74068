package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fabricekabongo/nexmark/internal/sink"
	"github.com/fabricekabongo/nexmark/internal/sink/kafka"
	"github.com/fabricekabongo/nexmark/internal/sink/rabbitmq"
	"github.com/fabricekabongo/nexmark/internal/storage/sqlite"
)

func newConsumeCmd(root *rootFlags) *cobra.Command {
	var (
		from string
		db   string
	)
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Store events from kafka or rabbitmq in the event log",
		Example: `  nexmark consume --from kafka --config nexmark.yaml
  nexmark consume --from rabbitmq --db events.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			if db == "" {
				db = cfg.Storage.SQLite.Path
			}
			store, err := sqlite.NewStore(db)
			if err != nil {
				return err
			}
			defer store.Close()
			app := sink.StoreAppender{Engine: store}
			ctx := cmd.Context()

			switch from {
			case "kafka":
				c, err := kafka.NewConsumer(kafka.Config{
					Brokers:     cfg.Kafka.Brokers,
					TopicPrefix: cfg.Kafka.TopicPrefix,
					Topics:      cfg.Kafka.Topics,
					GroupID:     cfg.Kafka.GroupID,
					ClientID:    cfg.Kafka.ClientID,
					Logger:      logger,
				}, app)
				if err != nil {
					return err
				}
				if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
			case "rabbitmq":
				c, err := rabbitmq.NewConsumer(rabbitmq.Config{
					URL:           cfg.RabbitMQ.URL,
					Exchange:      cfg.RabbitMQ.Exchange,
					Queue:         cfg.RabbitMQ.Queue,
					RoutingKeys:   cfg.RabbitMQ.RoutingKeys,
					PrefetchCount: cfg.RabbitMQ.PrefetchCount,
					Workers:       cfg.RabbitMQ.Workers,
					DeliveryQueue: cfg.RabbitMQ.DeliveryQueue,
					Logger:        logger,
				}, app)
				if err != nil {
					return err
				}
				if err := c.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				if err := c.Close(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("invalid --from %q", from)
			}

			n, err := store.Count(context.Background(), "")
			if err != nil {
				return err
			}
			logger.Info("consumer stopped", "stored", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "kafka", "Broker to consume from: kafka, rabbitmq")
	cmd.Flags().StringVar(&db, "db", "", "Event log path (defaults to storage.sqlite.path)")
	return cmd
}
