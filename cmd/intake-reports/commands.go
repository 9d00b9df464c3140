package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/batch"
	"github.com/PJI-Apps/Intake-Reports/internal/calculator"
	"github.com/PJI-Apps/Intake-Reports/internal/config"
	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/exporter"
	"github.com/PJI-Apps/Intake-Reports/internal/importer"
	"github.com/PJI-Apps/Intake-Reports/internal/period"
	"github.com/PJI-Apps/Intake-Reports/internal/reconcile"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
	"github.com/PJI-Apps/Intake-Reports/internal/server"
)

var errNotConfirmed = errors.New("refusing to run without --yes")

// withServices 打开存储并在结束后关闭
func withServices(fn func(ctx context.Context, s *server.Services) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.NewServices(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(results []reconcile.TableResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tREMOVED\tUPDATED\tTOTAL\tSTATUS")
	for _, r := range results {
		status := "ok"
		if !r.OK() {
			status = r.Error
		} else if len(r.Warnings) > 0 {
			status = strings.Join(r.Warnings, "; ")
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", r.Table, r.Removed, r.Updated, r.Total, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if _, _, failed := reconcile.Summary(results); len(failed) > 0 {
		return fmt.Errorf("%d table(s) failed", len(failed))
	}
	return nil
}

// ==================== serve ====================

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	return withServices(func(ctx context.Context, s *server.Services) error {
		logger.Info("starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("dataDir", config.ResolveDataDir(cfg)),
			zap.Strings("corsOrigins", cfg.Server.CORSOrigins))
		srv := server.NewServer(cfg, s, logger)
		return srv.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
	})
}

// ==================== upload ====================

var (
	uploadPeriod  string
	uploadStart   string
	uploadEnd     string
	uploadReplace bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <auto|calls|leads|init|disc|ncl> <file>",
	Short: "Upload a CSV/XLSX/XLS export into one table",
	Long: `Uploads one export file. Calls uploads need --period YYYY-MM; the other
tables need --start and --end. With --replace the table's replace policy
is applied instead of appending. "auto" picks the table from the headers.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}
		var kind schema.Key
		if strings.EqualFold(args[0], "auto") {
			kind, err = importer.DetectKind(args[1], data)
		} else {
			kind, err = schema.ParseKey(args[0])
		}
		if err != nil {
			return err
		}
		req := importer.UploadRequest{
			Kind:     kind,
			Filename: filepath.Base(args[1]),
			Data:     data,
			Period:   uploadPeriod,
			Replace:  uploadReplace,
		}
		if kind != schema.Calls {
			start, ok := dates.Parse(uploadStart)
			end, ok2 := dates.Parse(uploadEnd)
			if !ok || !ok2 {
				return errors.New("--start and --end are required for conversion uploads")
			}
			req.Range = dates.NewRange(start, end)
		}
		return withServices(func(ctx context.Context, s *server.Services) error {
			for evt := range s.Coordinator.Import(ctx, req) {
				switch evt.Type {
				case "done":
					return printJSON(evt.Data)
				case "error":
					if evt.Data != nil {
						_ = printJSON(evt.Data)
					}
					return evt.Err
				default:
					logger.Info(evt.Message, zap.String("event", evt.Type))
				}
			}
			return errors.New("upload finished without a report")
		})
	},
}

// ==================== batches ====================

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List batches and their row counts per table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, s *server.Services) error {
			all, err := s.Reconciler.ListBatches(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			header := []string{"BATCH"}
			for _, k := range schema.Keys() {
				header = append(header, string(k))
			}
			fmt.Fprintln(tw, strings.Join(header, "\t"))
			for _, id := range reconcile.BatchIDs(all) {
				cols := []string{id}
				for _, k := range schema.Keys() {
					cols = append(cols, fmt.Sprint(all[id][k]))
				}
				fmt.Fprintln(tw, strings.Join(cols, "\t"))
			}
			return tw.Flush()
		})
	},
}

var deleteBatchCmd = &cobra.Command{
	Use:   "delete-batch <batch-id>",
	Short: "Delete every row of a batch from all tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, s *server.Services) error {
			return printResults(s.Reconciler.DeleteBatch(ctx, args[0]))
		})
	},
}

var repairOrphansCmd = &cobra.Command{
	Use:   "repair-orphans [batch-id]",
	Short: "Assign a batch id to rows that have none",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := batch.NewID()
		if len(args) == 1 {
			id = args[0]
		}
		return withServices(func(ctx context.Context, s *server.Services) error {
			fmt.Printf("batch id: %s\n", id)
			return printResults(s.Reconciler.RepairOrphans(ctx, id))
		})
	},
}

// ==================== maintenance ====================

var confirmed bool

var wipeCmd = &cobra.Command{
	Use:   "wipe [table]",
	Short: "Remove all data rows, keeping headers (all tables when none given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmed {
			return errNotConfirmed
		}
		return withServices(func(ctx context.Context, s *server.Services) error {
			if len(args) == 0 {
				return printResults(s.Reconciler.WipeAll(ctx))
			}
			key, err := schema.ParseKey(args[0])
			if err != nil {
				return err
			}
			return printResults([]reconcile.TableResult{s.Reconciler.WipeTable(ctx, key)})
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset every table to its registry headers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmed {
			return errNotConfirmed
		}
		return withServices(func(ctx context.Context, s *server.Services) error {
			return printResults(s.Reconciler.MasterReset(ctx))
		})
	},
}

var dedupeLeadsCmd = &cobra.Command{
	Use:   "dedupe-leads",
	Short: "Drop duplicate leads, keeping the latest occurrence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, s *server.Services) error {
			return printResults([]reconcile.TableResult{s.Reconciler.DedupeLeads(ctx)})
		})
	},
}

var purgeMonthCmd = &cobra.Command{
	Use:   "purge-month <YYYY-MM>",
	Short: "Delete all call rows of one month",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := period.ParseMonthKey(args[0]); err != nil {
			return err
		}
		return withServices(func(ctx context.Context, s *server.Services) error {
			return printResults([]reconcile.TableResult{s.Reconciler.PurgeMonth(ctx, args[0])})
		})
	},
}

// ==================== reports ====================

var (
	periodMode  string
	periodYear  int
	periodMonth int
	periodWeek  int
	periodStart string
	periodEnd   string
	asJSON      bool
)

func addPeriodFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&periodMode, "mode", "month_to_date", "month_to_date, full_month, year_to_date, week_of_month or custom")
	cmd.Flags().IntVar(&periodYear, "year", 0, "year (default: current)")
	cmd.Flags().IntVar(&periodMonth, "month", 0, "month 1-12 (default: current)")
	cmd.Flags().IntVar(&periodWeek, "week", 0, "week of month for week_of_month")
	cmd.Flags().StringVar(&periodStart, "start", "", "start date for custom")
	cmd.Flags().StringVar(&periodEnd, "end", "", "end date for custom")
}

func resolveWindow() (dates.Range, error) {
	mode, err := period.ParseMode(periodMode)
	if err != nil {
		return dates.Range{}, err
	}
	req := period.Request{Mode: mode, Year: periodYear, Month: time.Month(periodMonth), Week: periodWeek}
	if mode == period.Custom {
		start, ok := dates.Parse(periodStart)
		end, ok2 := dates.Parse(periodEnd)
		if !ok || !ok2 {
			return dates.Range{}, errors.New("--start and --end are required for custom periods")
		}
		req.Start, req.End = start, end
	}
	return period.Resolve(req, time.Now())
}

var funnelCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Print the conversion funnel for a period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := resolveWindow()
		if err != nil {
			return err
		}
		return withServices(func(ctx context.Context, s *server.Services) error {
			f, err := s.Calculator.Funnel(ctx, window)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(f)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Period\t%s\n", window)
			for _, it := range f.Indicators() {
				fmt.Fprintf(tw, "%s\t%d%s\n", it.Name, int(it.Value), it.Unit)
			}
			return tw.Flush()
		})
	},
}

var callsFilter calculator.CallsFilter

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Print the calls report as CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, s *server.Services) error {
			r, err := s.Calculator.Calls(ctx, callsFilter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(r)
			}
			return exporter.WriteCallsCSV(os.Stdout, *r)
		})
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write funnel, attorney, intake and calls reports to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := resolveWindow()
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			dir, err := config.EnsureDataDir(cfg)
			if err != nil {
				return err
			}
			out = filepath.Join(dir, "exports", fmt.Sprintf("intake-report-%s.xlsx", window.Start.Format("2006-01-02")))
		}
		return withServices(func(ctx context.Context, s *server.Services) error {
			f, err := exporter.NewExporter(s.Calculator).Export(ctx, exporter.ExportOptions{Window: window}, func(e exporter.ProgressEvent) {
				logger.Debug("export progress", zap.Int("percent", e.Percent), zap.String("stage", e.Stage))
			})
			if err != nil {
				return err
			}
			defer f.Close()
			if err := f.SaveAs(out); err != nil {
				return fmt.Errorf("failed to save %s: %w", out, err)
			}
			fmt.Println(out)
			return nil
		})
	},
}

func init() {
	rootCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")

	uploadCmd.Flags().StringVar(&uploadPeriod, "period", "", "calls month as YYYY-MM")
	uploadCmd.Flags().StringVar(&uploadStart, "start", "", "declared range start")
	uploadCmd.Flags().StringVar(&uploadEnd, "end", "", "declared range end")
	uploadCmd.Flags().BoolVar(&uploadReplace, "replace", false, "apply the table's replace policy")

	wipeCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the wipe")
	resetCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the reset")

	addPeriodFlags(funnelCmd)
	funnelCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	addPeriodFlags(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output path (default: <data-dir>/exports)")

	callsCmd.Flags().StringVar(&callsFilter.Year, "year", "", "YYYY")
	callsCmd.Flags().StringVar(&callsFilter.Month, "month", "", "MM")
	callsCmd.Flags().StringVar(&callsFilter.Category, "category", "", "category")
	callsCmd.Flags().StringVar(&callsFilter.Name, "name", "", "staff name")
	callsCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
}
