package cli

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/archiver/internal/core/chains"
	"github.com/vietddude/archiver/internal/core/cursor"
	"github.com/vietddude/archiver/internal/indexing/syncer"
)

var resetDataDir string

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [chain_id] [block_height]",
	Short: "Reset the cursor for a specific chain to a given block height",
	Long: `Rewrites <data-dir>/<chain_id>/cursor.json. Datasets are left alone; each
contract still resumes after the highest block it already holds.`,
	Args: cobra.ExactArgs(2),
	RunE: runResetCursor,
}

func init() {
	resetCursorCmd.Flags().StringVar(&resetDataDir, "data-dir", "data", "dataset directory")
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) error {
	chainID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chain id: %w", err)
	}
	height, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid block height: %w", err)
	}

	if _, ok := chains.Builtin().Lookup(chainID); !ok {
		slog.Warn("Chain is not in the built-in table", "chain_id", chainID)
	}

	dir := syncer.ChainDir(resetDataDir, chainID)
	if err := cursor.Save(dir, cursor.New(height)); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Successfully reset cursor for %d to block %d\n", chainID, height)
	return nil
}
