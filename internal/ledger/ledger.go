// Package ledger implements the append-only provenance ledger.
//
// Two record types exist: evidence records binding an output artifact
// to the exact source row identifiers it consumed, and deterministic
// records carrying the content hash of an engine's full output payload.
// Records are created once and never mutated or deleted. Appends are
// ordered by a monotonically increasing sequence number assigned at
// append time, so concurrent appenders still produce a total order.
package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"
)

// Record types as they appear on the wire.
const (
	TypeEvidence      = "evidence"
	TypeDeterministic = "deterministic"
)

// EvidenceRef binds an output back to the exact source rows consumed.
type EvidenceRef struct {
	ID          string    `json:"id"`
	URI         string    `json:"uri"`
	InputRowIDs []string  `json:"input_row_ids"`
	Seq         int64     `json:"seq"`
	TS          time.Time `json:"ts"`
}

// DeterministicRun records a content hash over an engine's full output
// payload, enabling bit-exact reproducibility checks.
type DeterministicRun struct {
	Fn         string            `json:"fn"`
	Params     map[string]string `json:"params"`
	OutputHash string            `json:"output_hash"`
	Artifact   string            `json:"artifact"`
	Seq        int64             `json:"seq"`
	TS         time.Time         `json:"ts"`
}

// Record is one ledger line. Exactly one of Evidence or Deterministic
// is set, matching Type.
type Record struct {
	Type          string            `json:"type"`
	Evidence      *EvidenceRef      `json:"-"`
	Deterministic *DeterministicRun `json:"-"`
}

// Seq returns the record's sequence number.
func (r Record) Seq() int64 {
	if r.Evidence != nil {
		return r.Evidence.Seq
	}
	if r.Deterministic != nil {
		return r.Deterministic.Seq
	}
	return 0
}

// Ledger is an in-memory append-only record sequence for one run.
// Safe for concurrent appends.
type Ledger struct {
	mu      sync.Mutex
	seq     int64
	records []Record
	clock   func() time.Time
}

// New creates a Ledger stamping records with the given clock.
// A nil clock uses time.Now in UTC.
func New(clock func() time.Time) *Ledger {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{clock: clock}
}

// AppendEvidence appends an evidence record and returns it.
// Row identifiers are copied and sorted so the record is independent of
// upstream slice ordering.
func (l *Ledger) AppendEvidence(id, uri string, inputRowIDs []string) EvidenceRef {
	rows := slices.Clone(inputRowIDs)
	slices.Sort(rows)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	ev := EvidenceRef{ID: id, URI: uri, InputRowIDs: rows, Seq: l.seq, TS: l.clock()}
	l.records = append(l.records, Record{Type: TypeEvidence, Evidence: &ev})
	return ev
}

// AppendDeterministic appends a deterministic-run record and returns it.
func (l *Ledger) AppendDeterministic(fn string, params map[string]string, outputHash, artifactURI string) DeterministicRun {
	p := make(map[string]string, len(params))
	for k, v := range params {
		p[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	dr := DeterministicRun{Fn: fn, Params: p, OutputHash: outputHash, Artifact: artifactURI, Seq: l.seq, TS: l.clock()}
	l.records = append(l.records, Record{Type: TypeDeterministic, Deterministic: &dr})
	return dr
}

// Records returns a copy of all records in append order.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

// Hashes returns fn → output_hash for every deterministic record.
func (l *Ledger) Hashes() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string)
	for _, r := range l.records {
		if r.Deterministic != nil {
			out[r.Deterministic.Fn] = r.Deterministic.OutputHash
		}
	}
	return out
}

// WriteJSONL writes the ledger as line-delimited JSON, one record per
// line, in append order.
func (l *Ledger) WriteJSONL(w io.Writer) error {
	for _, r := range l.Records() {
		line, err := r.marshalLine()
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
	}
	return nil
}

func (r Record) marshalLine() ([]byte, error) {
	switch r.Type {
	case TypeEvidence:
		return json.Marshal(struct {
			Type string `json:"type"`
			EvidenceRef
		}{Type: TypeEvidence, EvidenceRef: *r.Evidence})
	case TypeDeterministic:
		return json.Marshal(struct {
			Type string `json:"type"`
			DeterministicRun
		}{Type: TypeDeterministic, DeterministicRun: *r.Deterministic})
	default:
		return nil, fmt.Errorf("unknown ledger record type %q", r.Type)
	}
}
