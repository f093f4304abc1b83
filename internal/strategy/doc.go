// Package strategy stores the append-only strategy and bundle templates.
// Records are immutable once created; the only mutation is the flag that
// opens creation to everyone.
package strategy
