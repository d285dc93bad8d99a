package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"genpipe/internal/domain"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Fetch the current state of a launched job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Status(cmd.Context(), domain.JobKind(kind), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "voice", "Job kind: voice, lipsync or faceswap")

	return cmd
}
