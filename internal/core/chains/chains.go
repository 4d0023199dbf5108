// Package chains holds the built-in table of registry deployments.
package chains

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/archiver/internal/core/domain"
)

// Registry addresses. The same pair is deployed on every mainnet and on
// every testnet.
var (
	MainnetIdentity   = common.HexToAddress("0x8004A169FB4a3325136EB29fA0ceB6D2e539a432")
	MainnetReputation = common.HexToAddress("0x8004BAa17C55a88189AE136b182e5fdA19dE9b63")
	TestnetIdentity   = common.HexToAddress("0x8004A818BFB912233c491871b3d84c89A494BD9e")
	TestnetReputation = common.HexToAddress("0x8004B663056A597Dffe9eCcC1965A193B7388713")
)

type entry struct {
	id      uint64
	name    string
	deploy  uint64
	rpc     string
	testnet bool
}

var table = []entry{
	{8453, "Base", 41_663_783, "https://base.gateway.tenderly.co", false},
	{1, "Ethereum", 24_339_871, "https://mainnet.gateway.tenderly.co", false},
	{137, "Polygon", 82_458_484, "https://rpc.sentio.xyz/matic", false},
	{42161, "Arbitrum One", 428_895_443, "https://rpc.sentio.xyz/arbitrum-one", false},
	{42220, "Celo", 58_396_724, "https://celo-json-rpc.stakely.io", false},
	{100, "Gnosis", 44_505_010, "https://gnosis-rpc.publicnode.com", false},
	{534352, "Scroll", 29_432_417, "https://scroll-rpc.publicnode.com", false},
	{167000, "Taiko", 4_305_747, "https://rpc.taiko.xyz", false},
	{56, "BNB Smart Chain", 79_027_268, "https://public-bsc.nownodes.io", false},
	{143, "Monad", 52_952_790, "https://rpc.sentio.xyz/monad-mainnet", false},
	{2741, "Abstract", 39_596_871, "https://api.mainnet.abs.xyz", false},
	{43114, "Avalanche", 77_389_000, "https://rpc.sentio.xyz/avalanche", false},
	{59144, "Linea", 28_662_553, "https://linea-rpc.publicnode.com", false},
	{5000, "Mantle", 91_333_846, "https://rpc.mantle.xyz", false},
	{4326, "MegaETH", 7_833_805, "https://mainnet.megaeth.com/rpc", false},
	{10, "Optimism", 147_514_947, "https://rpc.sentio.xyz/optimism", false},

	{84532, "Base Sepolia", 36_304_165, "https://sepolia.base.org", true},
	{11155111, "Ethereum Sepolia", 9_989_393, "https://ethereum-sepolia-rpc.publicnode.com", true},
	{80002, "Polygon Amoy", 33_069_064, "https://rpc-amoy.polygon.technology", true},
	{421614, "Arbitrum Sepolia", 239_945_838, "https://sepolia-rollup.arbitrum.io/rpc", true},
	{44787, "Celo Alfajores", 17_013_547, "https://alfajores-forno.celo-testnet.org", true},
	{534351, "Scroll Sepolia", 16_543_185, "https://sepolia-rpc.scroll.io", true},
	{97, "BSC Testnet", 84_555_147, "https://bsc-testnet-rpc.publicnode.com", true},
	{10143, "Monad Testnet", 10_391_697, "https://testnet-rpc.monad.xyz", true},
	{59141, "Linea Sepolia", 24_323_547, "https://rpc.sepolia.linea.build", true},
	{5003, "Mantle Sepolia", 34_586_937, "https://rpc.sepolia.mantle.xyz", true},
	{6342, "MegaETH Testnet", 11_668_749, "https://carrot.megaeth.com/rpc", true},
	{11155420, "Optimism Sepolia", 34_412_868, "https://sepolia.optimism.io", true},
}

// Table is an ordered set of chain targets keyed by chain ID.
type Table struct {
	targets []domain.ChainTarget
}

// NewTable builds a table, rejecting duplicate chain IDs.
func NewTable(targets []domain.ChainTarget) (*Table, error) {
	seen := make(map[uint64]struct{}, len(targets))
	for _, t := range targets {
		if _, ok := seen[t.ChainID]; ok {
			return nil, fmt.Errorf("duplicate chain id %d", t.ChainID)
		}
		seen[t.ChainID] = struct{}{}
	}
	return &Table{targets: slices.Clone(targets)}, nil
}

// Builtin returns the table of known registry deployments.
func Builtin() *Table {
	targets := make([]domain.ChainTarget, 0, len(table))
	for _, e := range table {
		targets = append(targets, domain.ChainTarget{
			ChainID:         e.id,
			Name:            e.name,
			DeploymentBlock: e.deploy,
			DefaultRPC:      e.rpc,
			IsTestnet:       e.testnet,
			Contracts:       Contracts(e.testnet),
		})
	}
	return &Table{targets: targets}
}

// Contracts returns the monitored contracts for a network, identity first.
func Contracts(testnet bool) []domain.Contract {
	identity, reputation := MainnetIdentity, MainnetReputation
	if testnet {
		identity, reputation = TestnetIdentity, TestnetReputation
	}
	return []domain.Contract{
		{Role: domain.RoleIdentity, Address: identity.Hex()},
		{Role: domain.RoleReputation, Address: reputation.Hex()},
	}
}

// All returns every target in table order.
func (t *Table) All() []domain.ChainTarget {
	return slices.Clone(t.targets)
}

// Select returns mainnets, plus testnets when includeTestnets is set.
func (t *Table) Select(includeTestnets bool) []domain.ChainTarget {
	out := make([]domain.ChainTarget, 0, len(t.targets))
	for _, c := range t.targets {
		if c.IsTestnet && !includeTestnets {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Lookup finds a target by chain ID.
func (t *Table) Lookup(chainID uint64) (domain.ChainTarget, bool) {
	for _, c := range t.targets {
		if c.ChainID == chainID {
			return c, true
		}
	}
	return domain.ChainTarget{}, false
}
