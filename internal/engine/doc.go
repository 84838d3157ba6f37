// Package engine implements the reconciliation rule engines of the
// close pipeline.
//
// Each engine consumes the Run State plus its dataset slice and
// produces an Artifact: optional per-row results, an exception set, an
// optional proposal set, and a summary. Engines are deterministic:
// identical datasets, materiality thresholds, and period always produce
// a byte-identical canonical payload, and therefore an identical
// content hash in the provenance ledger.
//
// Engines never mutate source records and never perform I/O. Rows,
// exceptions, and proposals are emitted in identifier-sorted order so
// output hashes do not depend on map iteration or scheduling.
//
// Failure handling follows a fixed taxonomy: a missing dataset aborts
// only the affected engine (SchemaGapError), a missing FX rate excludes
// the row and flips the coverage metric, a missing materiality
// threshold falls back to the fixed floor, and an unexpected arithmetic
// fault (ComputationError) is fatal to that engine only. The
// orchestrator records any engine failure as a Run State flag and the
// gatekeeper escalates it to high risk.
package engine
