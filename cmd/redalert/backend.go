package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/redalert/redalert/internal/backend"
	"github.com/redalert/redalert/internal/version"
)

var outputJSON bool

func backendClient() (*backend.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return backend.New(cfg.Backend, cliLogger()), nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent alerts stored by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			h, err := client.History(ctxOf(cmd), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, h)
			}
			return printHistory(out, h)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of alerts to list")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print raw JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all stored alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			if err := client.ClearHistory(ctxOf(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Alert history cleared")
			return nil
		},
	})
	return cmd
}

func printHistory(w io.Writer, h backend.History) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tURGENT\tTITLE")
	for _, a := range h.Alerts {
		urgent := ""
		if a.IsUrgent {
			urgent = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", a.ID, a.AlertDate, urgent, a.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d of %d alerts\n", len(h.Alerts), h.TotalCount)
	return err
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show alert counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			s, err := client.Stats(ctxOf(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total alerts:  %d\nUrgent alerts: %d\n", s.Total, s.Urgent)
			return nil
		},
	}
}

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one mail polling cycle on the backend now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			res, err := client.Poll(ctxOf(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
}

func newSimulateCmd() *cobra.Command {
	var a backend.TestAlert
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Ask the backend to broadcast a test alert",
		Long: `Ask the backend to broadcast a test alert on the stream. Test alerts
are always urgent and carry no calendar link.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			res, err := client.Simulate(ctxOf(cmd), a)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&a.Title, "title", "", "alert title (backend default if empty)")
	cmd.Flags().StringVar(&a.Description, "description", "", "alert description")
	cmd.Flags().StringVar(&a.URL, "url", "", "meeting link for the join action")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "redalert", version.GetFullVersion())
			if d := version.GetBuildDate(); d != "unknown" {
				fmt.Fprintln(cmd.OutOrStdout(), "built", d)
			}
		},
	}
}
