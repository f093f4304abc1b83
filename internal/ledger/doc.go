// Package ledger provides the transactional state store the engine runs on.
//
// Every externally visible operation executes inside Store.Update. The
// closure receives a Tx; returning an error discards every write made through
// that Tx, and events emitted through Tx.Emit are only published once the
// transaction commits. Store.View offers a read-only snapshot for the query
// surfaces.
package ledger
