package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lavamatic/pos/internal/logging"
	"github.com/lavamatic/pos/internal/ticket"
)

var ticketBatch int

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Ticket numbering",
}

var ticketNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Issue the next ticket number(s)",
	Long: `Issue the next ticket number, or -n consecutive numbers in one atomic
counter advance. Numbers are printed as fixed-width 3-digit strings.

If the durable counter is unavailable the command still prints
well-formed numbers from a timestamp fallback, but flags the output as
DEGRADED because global uniqueness is then best effort.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp("[ticket] ")
		if err != nil {
			return err
		}
		defer a.close()

		gen := ticket.New(a.store, logging.NewStderrLogger("[ticket] "))
		numbers, degraded, err := gen.NextBatch(context.Background(), ticketBatch)
		if err != nil {
			return err
		}

		fmt.Println(strings.Join(numbers, " "))
		if degraded {
			fmt.Println("DEGRADED: counter unavailable, numbers are timestamp-derived")
		}
		return nil
	},
}

func init() {
	ticketNextCmd.Flags().IntVarP(&ticketBatch, "count", "n", 1, "how many consecutive numbers to issue")
	ticketCmd.AddCommand(ticketNextCmd)
}
