package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/fabricekabongo/nexmark/event"
)

func newSchemaCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of each record kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindFilter(kind)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if k != "" {
				return enc.Encode(event.Schema(k))
			}
			out := make(map[event.Kind]any, len(event.Kinds))
			for _, k := range event.Kinds {
				out[k] = event.Schema(k)
			}
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "all", "Event type: all, person, auction, bid")
	return cmd
}
