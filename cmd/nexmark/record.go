package main

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fabricekabongo/nexmark"
	"github.com/fabricekabongo/nexmark/internal/hashroute"
	"github.com/fabricekabongo/nexmark/internal/storage"
	"github.com/fabricekabongo/nexmark/internal/storage/sqlite"
)

const recordBatch = 1000

func newRecordCmd(root *rootFlags) *cobra.Command {
	var (
		number int
		source string
		db     string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Write generated events to the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if number <= 0 {
				return fmt.Errorf("--number must be > 0")
			}
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

			gen, err := nexmark.New(cfg.Generator.Nexmark())
			if err != nil {
				return err
			}
			var (
				seq      uint64
				inserted int
			)
			for seq < uint64(number) {
				evs := gen.Take(min(recordBatch, number-int(seq)))
				if len(evs) == 0 {
					break
				}
				entries := make([]storage.Entry, 0, len(evs))
				for _, ev := range evs {
					e, err := storage.EntryFromEvent(seq, source, ev)
					if err != nil {
						return err
					}
					entries = append(entries, e)
					seq++
				}
				n, err := store.Append(cmd.Context(), entries)
				if err != nil {
					return err
				}
				inserted += n
			}
			logger.Info("recorded", "db", db, "source", source, "events", seq, "new", inserted)
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "number", "n", 10_000, "Number of events to record")
	cmd.Flags().StringVar(&source, "source", "generator", "Source name the entries are recorded under")
	cmd.Flags().StringVar(&db, "db", "", "Event log path (defaults to storage.sqlite.path)")
	return cmd
}

func newReplayCmd(root *rootFlags) *cobra.Command {
	var (
		source string
		kind   string
		from      uint64
		limit     int
		partition int
		tagged    bool
		db        string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print events from the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindFilter(kind)
			if err != nil {
				return err
			}
			cfg, _, err := root.load(cmd)
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

			q := storage.Query{Source: source, Kind: k, FromSeq: from, Limit: limit}
			if partition >= 0 {
				if partition >= hashroute.PartitionCount {
					return fmt.Errorf("--partition must be below %d", hashroute.PartitionCount)
				}
				q.Partition = &partition
			}
			entries, err := store.Scan(cmd.Context(), q)
			if err != nil {
				return err
			}
			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()
			for _, e := range entries {
				if !tagged {
					if _, err := fmt.Fprintln(w, e.PayloadJSON); err != nil {
						return err
					}
					continue
				}
				ev, err := e.Event()
				if err != nil {
					return err
				}
				b, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(w, string(b)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "generator", "Source to replay")
	cmd.Flags().StringVarP(&kind, "type", "t", "all", "Event type: all, person, auction, bid")
	cmd.Flags().Uint64Var(&from, "from", 0, "First sequence number")
	cmd.Flags().IntVarP(&limit, "number", "n", 0, "Maximum number of events (0 for all)")
	cmd.Flags().IntVar(&partition, "partition", -1, "Only replay entries whose key falls in this partition (-1 for all)")
	cmd.Flags().BoolVar(&tagged, "tagged", false, `Print {"kind":...,"data":...} instead of flat records`)
	cmd.Flags().StringVar(&db, "db", "", "Event log path (defaults to storage.sqlite.path)")
	return cmd
}

