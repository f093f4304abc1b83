package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"Recipe-Chain/internal/config"
)

func TestGenesisFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Governance.Bots = []string{"0x00000000000000000000000000000000000000b0"}
	cfg.Governance.OpenBundles = true
	cfg.Governance.Genesis = []config.Allocation{{
		Token:  "0x00000000000000000000000000000000000000da",
		Owner:  "0x00000000000000000000000000000000000000e0",
		Amount: "1000000000000000000",
	}}
	cfg.Registry = []config.RegistryEntry{
		{Name: "PullToken", Impl: "PullToken", WaitPeriod: 3600},
		{Name: "0x01020304", Impl: "SendToken", Address: "0x00000000000000000000000000000000000000c1"},
	}

	genesis, err := genesisFromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, []common.Address{common.HexToAddress("0xb0")}, genesis.Bots)
	require.True(t, genesis.OpenBundles)
	require.False(t, genesis.OpenStrategies)
	require.Len(t, genesis.Allocations, 1)
	require.Equal(t, "1000000000000000000", genesis.Allocations[0].Amount.Dec())
	require.Len(t, genesis.Entries, 2)
	require.Equal(t, uint64(3600), genesis.Entries[0].WaitPeriod)
	require.Equal(t, common.HexToAddress("0xc1"), genesis.Entries[1].Address)
}

func TestGenesisRejectsBadInput(t *testing.T) {
	cases := map[string]func(cfg *config.Config){
		"bot address": func(cfg *config.Config) { cfg.Governance.Bots = []string{"keeper"} },
		"amount": func(cfg *config.Config) {
			cfg.Governance.Genesis = []config.Allocation{{
				Token:  "0x00000000000000000000000000000000000000da",
				Owner:  "0x00000000000000000000000000000000000000e0",
				Amount: "twelve",
			}}
		},
		"registry address": func(cfg *config.Config) {
			cfg.Registry = []config.RegistryEntry{{Name: "PullToken", Impl: "PullToken", Address: "0x12"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(cfg)
			_, err := genesisFromConfig(cfg)
			require.Error(t, err)
		})
	}
}
