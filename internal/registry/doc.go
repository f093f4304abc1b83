// Package registry maps 4-byte ids to implementation addresses with
// per-entry, time-delayed change control, and resolves those addresses to
// in-process implementations through a Catalog.
//
// Every entry moves through Stable -> PendingChange(startTime) -> Stable. A
// change can be approved once the entry's wait period has elapsed since the
// change started; an entry with a zero wait period can be approved in the
// same transaction. Every mutation is written to the audit log.
package registry
