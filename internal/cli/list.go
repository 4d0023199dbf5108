package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/archiver/internal/core/chains"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported chains and their RPC pools",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tDEPLOY BLOCK\tRPCS\tPRIMARY RPC")
	for _, c := range chains.Builtin().All() {
		rpcs := appCfg.RPCsFor(c.ChainID, c.DefaultRPC)
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
			c.ChainID, c.Name, c.Network(), c.DeploymentBlock, len(rpcs), rpcs[0])
	}
	return w.Flush()
}
