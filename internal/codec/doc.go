// Package codec implements the canonical ABI encodings used by the engine:
// the subscription integrity hash, the typed argument packing that actions
// and triggers use for their opaque calldata, and 32-byte word conversions
// for piped values.
package codec
