package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"itinera/internal/database"
	"itinera/internal/document"
	"itinera/internal/models"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

func newGenerateCmd(c *cli) *cobra.Command {
	var s models.TripSettings

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store a new itinerary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(); err != nil {
				return err
			}
			it, redirect, err := c.service.Generate(cmd.Context(), s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s (%d days)\n", it.ID, len(it.Days))
			fmt.Fprintf(out, "Edit: %s%s\n", strings.TrimRight(c.cfg.API.PublicBaseURL, "/"), redirect)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&s.Destination, "destination", "", "trip destination")
	f.StringSliceVar(&s.Cities, "cities", nil, "additional cities to visit")
	f.StringVar(&s.StartDate, "start", "", "start date, YYYY-MM-DD")
	f.StringVar(&s.EndDate, "end", "", "end date, YYYY-MM-DD")
	f.IntVar(&s.Travelers, "travelers", models.DefaultTravelers, "number of travelers")
	f.StringVar(&s.Budget, "budget", "", "budget label")
	f.StringVar(&s.Theme, "theme", "", "trip theme")
	f.StringSliceVar(&s.Attractions, "attractions", nil, "must-see attractions")
	f.StringVar(&s.SpecialRequests, "requests", "", "special requests")
	return cmd
}

func newListCmd(c *cli) *cobra.Command {
	var filter models.ItineraryFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List itineraries with dashboard counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(); err != nil {
				return err
			}
			items, err := c.service.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			stats, err := c.service.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total: %d  Active: %d  Feedback: %d  Completed: %d\n\n",
				stats.Total, stats.Active, stats.Feedback, stats.Completed)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tDESTINATION\tDATES\tSTATUS\tPENDING")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s..%s\t%s\t%d\n",
					it.ID, it.Title, it.Destination, it.StartDate, it.EndDate, it.Status, it.PendingComments())
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.Search, "search", "", "match title or destination")
	cmd.Flags().StringVar(&filter.Status, "status", "", "filter by status")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print an itinerary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(); err != nil {
				return err
			}
			it, err := c.service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(it)
		},
	}
}

func newShareCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "share <id>",
		Short: "Share an itinerary and print the client link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(); err != nil {
				return err
			}
			it, _, err := c.service.Share(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.service.ShareURL(it.ShareToken))
			return nil
		},
	}
}

func newCompleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark an itinerary completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(); err != nil {
				return err
			}
			it, err := c.service.Complete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", it.ID, it.Status)
			return nil
		},
	}
}

func newExportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export itineraries to files",
	}

	var pdfOut string
	var withImages bool
	pdfCmd := &cobra.Command{
		Use:   "pdf <id>",
		Short: "Render an itinerary to PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(); err != nil {
				return err
			}
			it, err := c.service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var opts document.Options
			if it.Status != models.StatusDraft {
				opts.ShareURL = c.service.ShareURL(it.ShareToken)
			}
			path := outputPath(pdfOut, c.cfg.Exports.Path, it.ID+".pdf")
			err = writeTo(path, func(w io.Writer) error {
				return c.newExporter(withImages).PDF(cmd.Context(), w, it, opts)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	pdfCmd.Flags().StringVarP(&pdfOut, "out", "o", "", "output file (default <exports.path>/<id>.pdf)")
	pdfCmd.Flags().BoolVar(&withImages, "images", true, "download day images")

	var xlsxOut string
	var filter models.ItineraryFilter
	xlsxCmd := &cobra.Command{
		Use:   "xlsx",
		Short: "Export the dashboard list to Excel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(); err != nil {
				return err
			}
			items, err := c.service.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			name := fmt.Sprintf("itineraries_%s.xlsx", time.Now().Format("20060102"))
			path := outputPath(xlsxOut, c.cfg.Exports.Path, name)
			err = writeTo(path, func(w io.Writer) error {
				return c.newExporter(false).Dashboard(w, items)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	xlsxCmd.Flags().StringVarP(&xlsxOut, "out", "o", "", "output file (default <exports.path>/itineraries_<date>.xlsx)")
	xlsxCmd.Flags().StringVar(&filter.Search, "search", "", "match title or destination")
	xlsxCmd.Flags().StringVar(&filter.Status, "status", "", "filter by status")

	cmd.AddCommand(pdfCmd, xlsxCmd)
	return cmd
}

func newBackupCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up the database and prune old copies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(); err != nil {
				return err
			}
			cfg := c.cfg.Backup
			if cfg.StoragePath == "" {
				cfg.StoragePath = "backups"
			}

			backups := database.NewBackupService(c.db, cfg, c.logger)
			path, err := backups.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, path)
			for _, removed := range backups.CleanupOldBackups() {
				fmt.Fprintf(out, "removed %s\n", removed)
			}
			return nil
		},
	}
}

func newHealthCmd(c *cli) *cobra.Command {
	var addr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service of a running API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				if err := c.loadConfig(); err != nil {
					return err
				}
				addr = fmt.Sprintf("localhost:%d", c.cfg.API.GRPC.Port)
			}

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}

			raw, err := protojson.Marshal(resp)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("service is %s", resp.GetStatus())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (default localhost:<api.grpc.port>)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func outputPath(explicit, dir, name string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(dir, name)
}

func writeTo(path string, render func(w io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
