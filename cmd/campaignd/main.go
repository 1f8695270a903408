package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaignd/internal/app"
	"github.com/foxzi/campaignd/internal/config"
	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/metrics"
	"github.com/foxzi/campaignd/internal/report"
	"github.com/foxzi/campaignd/internal/storage"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// report command flags
var (
	reportCSV    string
	reportBucket string
	reportStart  string
	reportEnd    string
	reportOutput string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "campaignd",
	Short: "campaignd - bulk email campaign dispatcher",
	Long:  `campaignd dispatches personalized email campaigns and reconciles provider delivery events into per-recipient reports.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign dispatch server",
	Long:  `Start the campaignd HTTP API for submitting and polling campaign jobs.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build a delivery report without starting the server",
	Long:  `Reconcile provider delivery events against a recipient list and write the per-recipient report CSV.`,
	RunE:  runReport,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("campaignd version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	reportCmd.Flags().StringVar(&reportCSV, "csv", "", "recipient list CSV path")
	reportCmd.Flags().StringVar(&reportBucket, "bucket", "", "event log bucket (defaults to configuration)")
	reportCmd.Flags().StringVar(&reportStart, "start", "", "first day to scan, YYYY-MM-DD")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "last day to scan, YYYY-MM-DD")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "report.csv", "output CSV path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, reportCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  API: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  SES region: %s\n", cfg.SES.Region)
	fmt.Printf("  MSG91 endpoint: %s\n", cfg.Msg91.Endpoint)
	fmt.Printf("  Report bucket: %s\n", cfg.Report.Bucket)
	fmt.Printf("  Send log: %v\n", cfg.SendLog.Enabled)

	return nil
}

// runReport performs one reconciliation synchronously, using a throwaway
// in-memory registry to carry the job state.
func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if reportCSV == "" {
		return fmt.Errorf("--csv is required")
	}
	bucket := reportBucket
	if bucket == "" {
		bucket = cfg.Report.Bucket
	}
	if bucket == "" {
		return fmt.Errorf("--bucket is required (no bucket configured)")
	}
	start, err := time.Parse("2006-01-02", reportStart)
	if err != nil {
		return fmt.Errorf("--start must be YYYY-MM-DD: %w", err)
	}
	end, err := time.Parse("2006-01-02", reportEnd)
	if err != nil {
		return fmt.Errorf("--end must be YYYY-MM-DD: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("--end is before --start")
	}

	ctx := context.Background()

	store, err := storage.NewS3Store(ctx, cfg.Report.Region)
	if err != nil {
		return fmt.Errorf("failed to create object store client: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := jobs.NewRegistry(0, logger)
	reconciler := report.NewReconciler(store, registry, metrics.New(), cfg.Report.PrefixRoot, logger)

	job := registry.Create(jobs.TypeReport, fmt.Sprintf("delivery report: %s", reportCSV))
	reconciler.Run(ctx, job.ID, report.Params{
		Bucket:     bucket,
		Start:      start,
		End:        end,
		InputCSV:   reportCSV,
		OutputPath: reportOutput,
	})

	result, _ := registry.Get(job.ID)
	if result.Status == jobs.StatusFailed {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "error [%s] %s: %s\n", e.Stage, e.Ref, e.Message)
		}
		return fmt.Errorf("report failed")
	}

	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "warning [%s] %s: %s\n", e.Stage, e.Ref, e.Message)
	}
	fmt.Printf("Report written to %s (%d recipients)\n", result.OutputPath, result.Total)
	return nil
}
