// Package builtin contains the stock triggers: token balance thresholds,
// timestamps with a repeat interval and an upper bound on the gas price.
package builtin
