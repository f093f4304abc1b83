package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/config"
	"Recipe-Chain/internal/engine"
)

// parseAddress 校验十六进制地址，field 用于错误信息。
func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s 不是合法地址: %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// genesisFromConfig 把治理与注册表配置转换为引擎的启动参数。
func genesisFromConfig(cfg *config.Config) (engine.Genesis, error) {
	genesis := engine.Genesis{
		OpenStrategies: cfg.Governance.OpenStrategies,
		OpenBundles:    cfg.Governance.OpenBundles,
	}
	for i, raw := range cfg.Governance.Bots {
		addr, err := parseAddress(fmt.Sprintf("governance.bots[%d]", i), raw)
		if err != nil {
			return engine.Genesis{}, err
		}
		genesis.Bots = append(genesis.Bots, addr)
	}
	for i, alloc := range cfg.Governance.Genesis {
		tok, err := parseAddress(fmt.Sprintf("governance.genesis[%d].token", i), alloc.Token)
		if err != nil {
			return engine.Genesis{}, err
		}
		owner, err := parseAddress(fmt.Sprintf("governance.genesis[%d].owner", i), alloc.Owner)
		if err != nil {
			return engine.Genesis{}, err
		}
		amount, err := uint256.FromDecimal(strings.TrimSpace(alloc.Amount))
		if err != nil {
			return engine.Genesis{}, fmt.Errorf("governance.genesis[%d].amount: %w", i, err)
		}
		genesis.Allocations = append(genesis.Allocations, engine.Allocation{Token: tok, Owner: owner, Amount: amount})
	}
	for i, entry := range cfg.Registry {
		reg := engine.Registration{Name: entry.Name, Impl: entry.Impl, WaitPeriod: entry.WaitPeriod}
		if strings.TrimSpace(entry.Address) != "" {
			addr, err := parseAddress(fmt.Sprintf("registry[%d].address", i), entry.Address)
			if err != nil {
				return engine.Genesis{}, err
			}
			reg.Address = addr
		}
		genesis.Entries = append(genesis.Entries, reg)
	}
	return genesis, nil
}
