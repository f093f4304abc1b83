// Package engine wires the ledger, the registry catalog and every on-ledger
// component into one node, and exposes each external operation as a single
// ledger transaction.
package engine
