// Package web3 connects the engine to EVM networks. Chains are declared in a
// YAML file; each chain gets a go-ethereum backed client that the gas price
// trigger and the bot use for live network conditions.
package web3
