package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseYAMLAppliesDefaults(t *testing.T) {
	content := []byte(`
governance:
  owner: "0x00000000000000000000000000000000000000a0"
  bots: ["0x00000000000000000000000000000000000000b0"]
registry:
  - name: PullToken
    impl: PullToken
    wait_period: 3600
bot:
  enabled: true
  address: "0x00000000000000000000000000000000000000b0"
  plans:
    - strategy_or_bundle_id: 1
      strategy_index: 0
      trigger_call_data: ["0x"]
      actions_call_data: ["0x01ff"]
`)
	cfg, err := Parse(content, ".yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Ledger.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.JobStore.MaxRetries != 3 || cfg.Bot.Workers != 4 || cfg.Bot.Schedule == "" {
		t.Fatalf("bot defaults not applied: %+v", cfg.Bot)
	}
	if len(cfg.Registry) != 1 || cfg.Registry[0].WaitPeriod != 3600 {
		t.Fatalf("unexpected registry: %+v", cfg.Registry)
	}
	if len(cfg.Bot.Plans) != 1 || len(cfg.Bot.Plans[0].ActionsCallData) != 1 || cfg.Bot.Plans[0].ActionsCallData[0][1] != 0xff {
		t.Fatalf("plans not decoded: %+v", cfg.Bot.Plans)
	}
}

func TestLoadJSONResolvesChainConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipechain.json")
	content := `{"web3":{"chain_config":"chain.yaml"},"events":{"sinks":["Redis"]}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Web3.ChainConfig != filepath.Join(dir, "chain.yaml") {
		t.Fatalf("chain config not resolved: %s", cfg.Web3.ChainConfig)
	}
	if !cfg.Events.Enabled("redis") || cfg.Events.Enabled("rabbitmq") {
		t.Fatalf("unexpected sinks: %v", cfg.Events.Sinks)
	}
}

func TestValidateRejectsInconsistentDrivers(t *testing.T) {
	cases := map[string]string{
		"ledger":    "ledger:\n  driver: sqlite\n",
		"dsn":       "ledger:\n  driver: mysql\n",
		"queue":     "queue:\n  driver: kafka\n",
		"job_store": "job_store:\n  driver: mysql\n",
		"bot":       "bot:\n  enabled: true\n",
		"registry":  "registry:\n  - name: X\n",
	}
	for name, content := range cases {
		if _, err := Parse([]byte(content), ".yaml"); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvPath, "")
	if PathFromEnv() != DefaultPath {
		t.Fatalf("expected default path")
	}
	t.Setenv(EnvPath, "/etc/recipechain.yaml")
	if PathFromEnv() != "/etc/recipechain.yaml" {
		t.Fatalf("env path ignored")
	}
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "recipechain.yaml"))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !cfg.Bot.Enabled || len(cfg.Server.Tokens) != 2 {
		t.Fatalf("unexpected sample: %+v", cfg)
	}
	if filepath.Base(cfg.Web3.ChainConfig) != "chain.yaml" {
		t.Fatalf("chain config not resolved: %s", cfg.Web3.ChainConfig)
	}
	if _, err := os.Stat(cfg.Web3.ChainConfig); err != nil {
		t.Fatalf("chain config missing: %v", err)
	}
}
