package web3

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChainDefinitionsValidates(t *testing.T) {
	cases := map[string]string{
		"missing rpc":    "chains:\n  local:\n    type: evm\n",
		"unsupported":    "chains:\n  sol:\n    type: solana\n    rpc_url: https://rpc.example\n",
		"bad scheme":     "chains:\n  local:\n    rpc_url: ftp://127.0.0.1\n",
		"malformed yaml": "chains: [",
		"relative rpc":   "chains:\n  local:\n    rpc_url: 127.0.0.1:8545\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseChainDefinitions([]byte(content))
			require.Error(t, err)
		})
	}

	defs, err := ParseChainDefinitions([]byte("chains:\n  b:\n    rpc_url: wss://b.example\n  a:\n    type: EVM\n    chain_id: 31337\n    rpc_url: http://127.0.0.1:8545\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, defs.Names())
	assert.Equal(t, uint64(31337), defs.Chains["a"].ChainID)
}

func TestLoadChainDefinitionsExpandsEnv(t *testing.T) {
	t.Setenv("RECIPE_RPC_KEY", "k3y")
	path := filepath.Join(t.TempDir(), "chain.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chains:\n  sepolia:\n    rpc_url: https://sepolia.example/v3/${RECIPE_RPC_KEY}\n"), 0o600))

	defs, err := LoadChainDefinitions(path)
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.example/v3/k3y", defs.Chains["sepolia"].RPCURL)

	empty, err := LoadChainDefinitions("")
	require.NoError(t, err)
	assert.Empty(t, empty.Chains)
}
