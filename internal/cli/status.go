package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/archiver/internal/core/chains"
	"github.com/vietddude/archiver/internal/core/cursor"
	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/indexing/syncer"
	"github.com/vietddude/archiver/internal/infra/storage/columnar"
	"github.com/vietddude/archiver/internal/infra/storage/postgres"
)

var statusFlags struct {
	dataDir string
	catalog bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the archived state of every chain",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.dataDir, "data-dir", "data", "dataset directory")
	statusCmd.Flags().BoolVar(&statusFlags.catalog, "catalog", false, "read the Postgres catalog instead of the data dir")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusFlags.catalog {
		return runCatalogStatus(cmd)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHAIN\tNAME\tCURSOR\tSYNCED\tIDENTITY\tREPUTATION")

	for _, c := range chains.Builtin().All() {
		dir := syncer.ChainDir(statusFlags.dataDir, c.ChainID)
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		cur, err := cursor.Load(dir, nil)
		if err != nil {
			return err
		}
		block, synced := "-", "-"
		if cur != nil {
			block = fmt.Sprint(cur.LastBlock)
			synced = time.Unix(int64(cur.SyncedAt), 0).UTC().Format(time.RFC3339)
		}

		identity, err := columnar.Count(syncer.DatasetPath(dir, domain.RoleIdentity))
		if err != nil {
			return err
		}
		reputation, err := columnar.Count(syncer.DatasetPath(dir, domain.RoleReputation))
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", c.ChainID, c.Name, block, synced, identity, reputation)
	}
	return w.Flush()
}

func runCatalogStatus(cmd *cobra.Command) error {
	if !appCfg.Database.Enabled() {
		return errors.New("database.url is not configured")
	}

	ctx := cmd.Context()
	db, err := postgres.NewDB(ctx, appCfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := postgres.NewCatalog(db).Datasets(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHAIN\tROLE\tROWS\tMAX BLOCK\tLAST BLOCK\tUPDATED\tRUN")
	for _, r := range rows {
		maxBlock := "-"
		if r.MaxBlock.Valid {
			maxBlock = fmt.Sprint(r.MaxBlock.Int64)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%s\t%s\n",
			r.ChainID, r.Role, r.Rows, maxBlock, r.LastBlock, r.UpdatedAt.Format(time.RFC3339), r.RunID)
	}
	return w.Flush()
}
