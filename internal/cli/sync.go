package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vietddude/archiver/internal/control"
	"github.com/vietddude/archiver/internal/core/chains"
	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/indexing/fetcher"
	"github.com/vietddude/archiver/internal/indexing/health"
	"github.com/vietddude/archiver/internal/indexing/metrics"
	"github.com/vietddude/archiver/internal/indexing/syncer"
	"github.com/vietddude/archiver/internal/infra/chain/evm"
	"github.com/vietddude/archiver/internal/infra/objectstore"
	redisclient "github.com/vietddude/archiver/internal/infra/redis"
	"github.com/vietddude/archiver/internal/infra/storage/postgres"
)

var syncFlags struct {
	dataDir         string
	chainID         uint64
	rpc             string
	includeTestnets bool
	parallel        int
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Archive registry events for every selected chain",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	f := syncCmd.Flags()
	f.StringVar(&syncFlags.dataDir, "data-dir", "data", "output directory for datasets and cursors")
	f.Uint64Var(&syncFlags.chainID, "chain", 0, "sync a single chain ID")
	f.StringVar(&syncFlags.rpc, "rpc", "", "override the RPC pool of --chain with one URL")
	f.BoolVar(&syncFlags.includeTestnets, "include-testnets", false, "also sync testnets")
	f.IntVar(&syncFlags.parallel, "parallel", 16, "chains synced concurrently")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := appCfg
	runID := uuid.NewString()
	log := slog.Default().With("run_id", runID)

	targets, err := control.ResolveTargets(chains.Builtin(), cfg, control.Selection{
		ChainID:         syncFlags.chainID,
		RPC:             syncFlags.rpc,
		IncludeTestnets: syncFlags.includeTestnets,
	})
	if err != nil {
		return err
	}
	if err := control.Validate(targets); err != nil {
		return err
	}

	parallel := syncFlags.parallel
	if !cmd.Flags().Changed("parallel") {
		parallel = cfg.Sync.Concurrency
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := fetcher.New(fetcherConfig(cfg.Sync), fetcher.WithLogger(slog.Default()))
	sy := syncer.New(
		syncFlags.dataDir,
		evm.NewDialer(cfg.Sync.RequestTimeout, cfg.MaxRPS()),
		engine,
		syncer.Options{TipTimeout: cfg.Sync.RequestTimeout, Storage: storageOptions(cfg.Sync)},
		slog.Default(),
	)

	opts := control.Options{Concurrency: parallel, RunID: runID}

	if cfg.Redis.Enabled() {
		rc, err := redisclient.NewClient(cfg.Redis, runID)
		if err != nil {
			return fmt.Errorf("chain lock: %w", err)
		}
		defer func() {
			_ = rc.Close()
		}()
		opts.Locker = rc
	}

	publishers, closeAll := openPublishers(ctx, log)
	defer closeAll()
	opts.Publishers = publishers

	chainTargets := make([]domain.ChainTarget, 0, len(targets))
	for _, t := range targets {
		chainTargets = append(chainTargets, t.Chain)
	}
	monitor := health.NewMonitor(runID, chainTargets)
	opts.Observer = monitor

	if cfg.Metrics.Addr != "" {
		srv := health.NewServer(monitor, cfg.Metrics.Addr)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		log.Info("Serving metrics", "addr", cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	log.Info("Archiving", "chains", len(targets), "data_dir", syncFlags.dataDir)
	report, err := control.New(sy, opts, slog.Default()).SyncAll(ctx, targets)
	printReport(cmd, report)

	if cfg.Metrics.Textfile != "" {
		if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.Warn("Failed to write metrics textfile", "error", werr)
		}
	}

	if errors.Is(err, control.ErrAllChainsFailed) {
		slog.Error("Every chain failed")
	}
	return err
}

// openPublishers connects the configured sinks. A sink that cannot be
// reached is skipped with a warning.
func openPublishers(ctx context.Context, log *slog.Logger) ([]control.Publisher, func()) {
	var (
		pubs    []control.Publisher
		closers []func()
	)

	if appCfg.Database.Enabled() {
		db, err := postgres.NewDB(ctx, appCfg.Database)
		if err != nil {
			log.Warn("Catalog disabled", "error", err)
		} else {
			pubs = append(pubs, postgres.NewCatalog(db))
			closers = append(closers, func() { _ = db.Close() })
		}
	}

	if appCfg.ObjectStore.Enabled() {
		up, err := objectstore.NewUploader(ctx, appCfg.ObjectStore, log)
		if err != nil {
			log.Warn("Object store upload disabled", "error", err)
		} else {
			pubs = append(pubs, up)
		}
	}

	return pubs, func() {
		for _, c := range closers {
			c()
		}
	}
}

func printReport(cmd *cobra.Command, report control.Report) {
	if len(report.Results) == 0 {
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHAIN\tNAME\tRESULT\tTIP\tADDED\tRPC\tTIME")
	for _, r := range report.Results {
		result, tip, added, rpc := "ok", "", "", ""
		if r.Outcome != nil {
			tip = fmt.Sprint(r.Outcome.Tip)
			added = fmt.Sprint(r.Outcome.Added())
			rpc = r.Outcome.Endpoint
			if r.Outcome.UpToDate {
				result = "up to date"
			}
		}
		if r.Err != nil {
			result = "FAILED"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ChainID, r.Name, result, tip, added, rpc, r.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d synced, %d failed\n", report.Succeeded, report.Failed)
	for _, r := range report.Results {
		if r.Err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "chain %d: %v\n", r.ChainID, r.Err)
		}
	}
}
