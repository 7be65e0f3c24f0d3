package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"logistics-recon/internal/config"
	"logistics-recon/internal/database"
	"logistics-recon/internal/workers"
)

var (
	sinceDays int
	limit     int
	interval  time.Duration
	dryRun    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mail-sync",
	Short: "Supplier notification mail ingestion for logistics reconciliation",
	Long: `mail-sync pulls supplier shipping notification emails from the
configured IMAP mailbox, extracts order numbers, carriers and tracking
numbers, and reconciles them against open supplier orders.

Runs once by default; with --interval it keeps scanning on a fixed cadence
until interrupted.

Configuration comes from environment variables (or a .env file in the
working directory): MAIL_HOST, MAIL_PORT, MAIL_USERNAME, MAIL_PASSWORD,
MAIL_FOLDER, MAIL_SINCE_DAYS, MAIL_SUPPLIER, MAIL_SENDER_MARKER,
MAIL_AUTO_LINK and DB_PATH. Flags may also be set through the environment
with the MAILSYNC_ prefix, e.g. MAILSYNC_INTERVAL=5m.`,
	RunE: runMailSync,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().IntVar(&sinceDays, "days", 0, "scan window in days (default from MAIL_SINCE_DAYS)")
	rootCmd.Flags().IntVar(&limit, "limit", 0, "maximum messages per run (default 50)")
	rootCmd.Flags().DurationVar(&interval, "interval", 0, "rescan cadence; 0 runs once and exits")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "extract facts without writing events or updating orders")

	viper.SetEnvPrefix("mailsync")
	viper.AutomaticEnv()
	viper.BindPFlag("days", rootCmd.Flags().Lookup("days"))
	viper.BindPFlag("limit", rootCmd.Flags().Lookup("limit"))
	viper.BindPFlag("interval", rootCmd.Flags().Lookup("interval"))
	viper.BindPFlag("dry_run", rootCmd.Flags().Lookup("dry-run"))
}

func runMailSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sinceDays = viper.GetInt("days")
	limit = viper.GetInt("limit")
	interval = viper.GetDuration("interval")
	dryRun = viper.GetBool("dry_run")

	engine := workers.NewMailSyncEngine(cfg, db)
	engine.SetDryRun(dryRun)

	if interval <= 0 {
		report, err := engine.Sync(sinceDays, limit)
		if err != nil {
			return err
		}
		logReport(report)
		return nil
	}

	log.Printf("Starting mail sync loop, interval %s", interval)

	// Run immediately, then on the ticker until interrupted.
	if report, err := engine.Sync(sinceDays, limit); err != nil {
		log.Printf("ERROR: Mail sync failed: %v", err)
	} else {
		logReport(report)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			report, err := engine.Sync(sinceDays, limit)
			if err != nil {
				log.Printf("ERROR: Mail sync failed: %v", err)
				continue
			}
			logReport(report)
		case sig := <-quit:
			log.Printf("Received signal: %v, stopping", sig)
			return nil
		}
	}
}

func logReport(report *workers.SyncReport) {
	log.Printf("Sync %s finished in %s: scanned=%d created=%d matched=%d matched_existing=%d auto=%d unmatched=%d ambiguous=%d skipped=%d ignored=%d errors=%d",
		report.RunID,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		report.Scanned, report.Created, report.Matched, report.MatchedExisting,
		report.MatchedAuto, report.Unmatched, report.Ambiguous,
		report.SkippedExisting, report.Ignored, len(report.Errors))

	for _, msg := range report.Errors {
		log.Printf("WARN: %s", msg)
	}
}
