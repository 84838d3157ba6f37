// Package canonical produces RFC 8785 canonical JSON and the
// domain-separated SHA-256 hashes built on top of it.
//
// Every content hash in the close pipeline (artifact hashes recorded in
// DeterministicRun ledger entries) is computed over bytes produced by
// Marshal. The encoding is deterministic: object keys are sorted by
// UTF-16 code units, strings are NFC normalized, HTML characters are not
// escaped, and floats are rejected outright. Monetary values travel as
// decimal.Decimal and are serialized as JSON strings, which keeps them
// exact and keeps floats out of the hash input.
package canonical
