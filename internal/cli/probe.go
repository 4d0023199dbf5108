package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/archiver/internal/control"
	"github.com/vietddude/archiver/internal/core/chains"
	"github.com/vietddude/archiver/internal/core/config"
	"github.com/vietddude/archiver/internal/indexing/probe"
	"github.com/vietddude/archiver/internal/infra/chain/evm"
)

var probeFlags struct {
	chainID         uint64
	includeTestnets bool
	parallel        int
	emitYAML        bool
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Rank RPC endpoints by archive coverage, max getLogs range and latency",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

func init() {
	f := probeCmd.Flags()
	f.Uint64Var(&probeFlags.chainID, "chain", 0, "probe a single chain ID")
	f.BoolVar(&probeFlags.includeTestnets, "include-testnets", false, "also probe testnets")
	f.IntVar(&probeFlags.parallel, "parallel", 8, "endpoints probed concurrently per chain")
	f.BoolVar(&probeFlags.emitYAML, "yaml", false, "print a ranked chains config block")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	targets, err := control.ResolveTargets(chains.Builtin(), appCfg, control.Selection{
		ChainID:         probeFlags.chainID,
		IncludeTestnets: probeFlags.includeTestnets,
	})
	if err != nil {
		return err
	}

	dial := evm.NewDialer(appCfg.Sync.RequestTimeout, appCfg.MaxRPS())
	out := cmd.OutOrStdout()
	var ranked []config.ChainConfig

	for _, t := range targets {
		results := probe.ProbeAll(cmd.Context(), dial, t.Chain, t.Endpoints, probeFlags.parallel)

		_, _ = fmt.Fprintf(out, "\n%s (chain %d): %d endpoints\n", t.Chain.Name, t.Chain.ChainID, len(results))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "#\tPING\tARCHIVE\tMAX RANGE\tURL\tERROR")
		for i, r := range results {
			ping, archive, maxRange, errMsg := "-", "NO", "-", ""
			if r.Reachable {
				ping = fmt.Sprintf("%dms", r.Latency.Milliseconds())
			}
			if r.Archive {
				archive = "YES"
			}
			if r.MaxRange > 0 {
				maxRange = fmt.Sprint(r.MaxRange)
			}
			if r.Err != nil {
				errMsg = truncate(r.Err.Error(), 60)
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				i+1, ping, archive, maxRange, strings.TrimPrefix(r.Endpoint, "https://"), errMsg)
		}
		_ = w.Flush()

		cc, _ := appCfg.Chain(t.Chain.ChainID)
		cc.ID = t.Chain.ChainID
		cc.RPCs = probe.Usable(results)
		if len(cc.RPCs) > 0 {
			ranked = append(ranked, cc)
		}
	}

	if probeFlags.emitYAML {
		data, err := yaml.Marshal(struct {
			Chains []config.ChainConfig `yaml:"chains"`
		}{ranked})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "\n%s", data)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
