package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"filebuttons/pkg/scenario"
)

func simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate SCENARIO...",
		Short: "Replay scripted button presses against a simulated printer",
		Long: `Replays each scenario file against the button controller using the
sim GPIO driver, an in-memory printer and an in-memory file tree, and
prints the status messages and printer commands each press produced.
Exits non-zero when an expectation in a scenario is not met.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, file := range args {
				res, err := scenario.Run(cmd.Context(), file)
				if err != nil {
					return err
				}
				res.Write(cmd.OutOrStdout())
				if !res.Passed() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
			}
			return nil
		},
	}
}
