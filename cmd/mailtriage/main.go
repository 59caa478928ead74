// Package main implements the mailtriage CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/credential"
	"github.com/nhle/mailtriage/internal/logging"
	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/metrics"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
)

// leaseTTL bounds how long a crashed writer can block others.
const leaseTTL = 6 * time.Hour

var (
	configPath  string
	dbPath      string
	logLevel    string
	logFormat   string
	metricsFile string

	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailtriage",
	Short: "Classify, review and clean up a mailbox",
	Long: `mailtriage classifies mailbox messages through deterministic rules,
learned sender patterns and a language model, records your decisions,
and moves approved deletions to the trash folder.

Nothing is ever expunged: cleanup only moves messages to the configured
trash folder.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus textfile metrics here after each run")
}

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg     *model.AppConfig
	logger  *zap.Logger
	store   *store.SQLiteStore
	stats   *model.RunStatistics
	command string
	started time.Time
	lease   string

	// export writes run metrics on close; set by the batch commands.
	export bool
}

// setup loads configuration, builds the logger and opens the store. Writer
// commands also claim the writer lease.
func setup(cmd *cobra.Command, writer bool) (*app, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if metricsFile != "" {
		cfg.MetricsFile = metricsFile
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger.With(zap.String("command", cmd.Name())),
		store:   st,
		stats:   model.NewRunStatistics(),
		command: cmd.Name(),
		started: time.Now(),
	}

	if writer {
		owner, err := st.AcquireWriterLease(cmd.Context(), cmd.Name(), leaseTTL)
		if err != nil {
			_ = st.Close()
			if errors.Is(err, store.ErrStoreLocked) {
				if l, lerr := st.CurrentLease(cmd.Context()); lerr == nil {
					return nil, fmt.Errorf("%w: %q since %s", err, l.Command, l.AcquiredAt.Local().Format(time.DateTime))
				}
			}
			return nil, err
		}
		a.lease = owner
	}

	return a, nil
}

// close releases the lease, exports metrics and closes the store. It is
// safe to defer right after setup.
func (a *app) close() {
	if a.lease != "" {
		if err := a.store.ReleaseWriterLease(context.Background(), a.lease); err != nil {
			a.logger.Warn("releasing writer lease failed", zap.Error(err))
		}
	}

	if a.export && a.cfg.MetricsFile != "" {
		exp := metrics.New(a.command)
		exp.Observe(a.stats, time.Since(a.started), time.Now())
		if err := exp.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Warn("writing metrics failed", zap.String("path", a.cfg.MetricsFile), zap.Error(err))
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// openMailbox connects to the configured mail store. The IMAP password is
// read from the environment or the keyring.
func (a *app) openMailbox() (mailbox.Mailbox, error) {
	var password string
	if a.cfg.Mailbox.Kind != "mbox" {
		pw, err := credential.Lookup(a.cfg.Mailbox.PasswordKey)
		if err != nil {
			return nil, fmt.Errorf("reading mailbox password: %w", err)
		}
		password = pw
	}
	return mailbox.Open(a.cfg.Mailbox, password, a.logger)
}
