// Package auth holds the two authorization layers of the engine: the ledger
// side allowlist of bots and the proxy execution gate that only the current
// strategy executor may pass, plus the bearer-token middleware guarding the
// HTTP write surfaces.
package auth
