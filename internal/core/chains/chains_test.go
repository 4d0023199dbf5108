package chains

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/archiver/internal/core/domain"
)

func TestBuiltin_UniqueIDsAndContracts(t *testing.T) {
	all := Builtin().All()
	require.Len(t, all, 28)

	seen := map[uint64]bool{}
	for _, c := range all {
		assert.False(t, seen[c.ChainID], "duplicate chain %d", c.ChainID)
		seen[c.ChainID] = true

		require.Len(t, c.Contracts, 2)
		assert.Equal(t, domain.RoleIdentity, c.Contracts[0].Role)
		assert.Equal(t, domain.RoleReputation, c.Contracts[1].Role)
		assert.True(t, strings.HasPrefix(c.DefaultRPC, "https://"), c.Name)
	}
}

func TestSelect_Testnets(t *testing.T) {
	tbl := Builtin()
	mainnets := tbl.Select(false)
	assert.Len(t, mainnets, 16)
	for _, c := range mainnets {
		assert.False(t, c.IsTestnet)
		assert.Equal(t, MainnetIdentity.Hex(), c.Contracts[0].Address)
	}
	assert.Len(t, tbl.Select(true), 28)
}

func TestLookup(t *testing.T) {
	tbl := Builtin()

	base, ok := tbl.Lookup(8453)
	require.True(t, ok)
	assert.Equal(t, "Base", base.Name)
	assert.Equal(t, uint64(41_663_783), base.DeploymentBlock)

	sepolia, ok := tbl.Lookup(11155111)
	require.True(t, ok)
	assert.True(t, sepolia.IsTestnet)
	assert.Equal(t, TestnetReputation.Hex(), sepolia.Contracts[1].Address)

	_, ok = tbl.Lookup(999999)
	assert.False(t, ok)
}

func TestNewTable_RejectsDuplicates(t *testing.T) {
	_, err := NewTable([]domain.ChainTarget{{ChainID: 1}, {ChainID: 1}})
	require.Error(t, err)

	tbl, err := NewTable([]domain.ChainTarget{{ChainID: 1}, {ChainID: 2}})
	require.NoError(t, err)
	assert.Len(t, tbl.All(), 2)
}
