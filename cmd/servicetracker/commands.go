package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"servicetracker/internal/metrics"
	"servicetracker/internal/models"
	"servicetracker/internal/monitor"
	"servicetracker/internal/server"
	"servicetracker/internal/tracker"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "servicetracker",
		Short:         "Record service start/end events and weekly completion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "config.yaml", "path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&flags.Driver, "store", "", "override store driver (file, sqlite, memory)")

	root.AddCommand(
		newServeCommand(flags),
		newStartCommand(flags),
		newEndCommand(flags),
		newListCommand(flags),
		newSummaryCommand(flags),
	)
	return root
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web page, JSON API and live feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr == "" {
				addr = rt.cfg.Addr
			}
			if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}
			interval := time.Duration(rt.cfg.PushSeconds) * time.Second
			mon := monitor.New(interval, rt.log, rt.logger)
			mon.Start()
			defer mon.Stop()

			srv := server.New(addr, rt.log,
				server.WithLogger(rt.logger),
				server.WithPushInterval(interval),
			)

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					rt.logger.Error("server shutdown", "error", err)
				}
			}()

			rt.logger.Info("service tracker listening", "addr", addr, "store", rt.cfg.Store.Driver, "records", len(rt.log.Services()))
			if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address for the web server (defaults to config addr)")
	return cmd
}

func newStartCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name> [range]",
		Short: "Start a service for a name",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			rng := ""
			if len(args) > 1 {
				rng = args[1]
			}
			rec, err := rt.log.Start(cmd.Context(), args[0], rng)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Servicio iniciado para %s (%s)\n", rec.Name, rec.ID)
			return nil
		},
	}
}

func newEndCommand(flags *globalFlags) *cobra.Command {
	index := -1
	cmd := &cobra.Command{
		Use:   "end [id]",
		Short: "Complete a running service by id or --index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byIndex := cmd.Flags().Changed("index")
			if byIndex == (len(args) == 1) {
				return errors.New("provide either a service id or --index")
			}

			rt, err := openRuntime(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			var rec models.ServiceRecord
			if byIndex {
				rec, err = rt.log.EndAt(cmd.Context(), index)
			} else {
				rec, err = rt.log.End(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Servicio finalizado para %s: %s\n", rec.Name, *rec.Duration)
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "position of the service in the log")
	return cmd
}

func newListCommand(flags *globalFlags) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List services, optionally filtered by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()
			return writeServices(cmd.OutOrStdout(), rt.log.Services(), search, time.Now())
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive name filter")
	return cmd
}

func newSummaryCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show weekly whole-hour totals per name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()
			return writeSummary(cmd.OutOrStdout(), rt.log.WeeklySummary())
		},
	}
}

// writeServices prints matching records with their position in the full log,
// which is what `end --index` expects.
func writeServices(w io.Writer, services []models.ServiceRecord, search string, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tID\tNAME\tRANGE\tSTARTED\tDURATION")
	for i, rec := range services {
		if !tracker.MatchName(rec.Name, search) {
			continue
		}
		duration := "En curso"
		if rec.Duration != nil {
			duration = *rec.Duration
		}
		started := humanize.RelTime(rec.StartTime, now, "ago", "from now")
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			strconv.Itoa(i), rec.ID, rec.Name, rec.Range, started, duration)
	}
	return tw.Flush()
}

func writeSummary(w io.Writer, totals []metrics.WeeklyTotal) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tHOURS\tSERVICES\tSTATUS")
	for _, t := range totals {
		_, _ = fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\n", t.Name, t.Hours, humanize.Comma(int64(t.Services)), t.Label)
	}
	return tw.Flush()
}
