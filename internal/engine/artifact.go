package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// CandidateHint is a non-binding nearest-peer suggestion. Advisory
// only: hints are never auto-applied.
type CandidateHint struct {
	RowID string
	// Score is a deterministic similarity in [0, 1], rounded to 4dp.
	Score decimal.Decimal
}

// Exception is one reconciliation finding. Immutable once emitted; the
// reason code is drawn from the emitting engine's closed enumeration.
type Exception struct {
	Entity      string
	Identifiers []string
	Amount      decimal.Decimal
	Currency    string
	Reason      string
	Rationale   string
	Candidates  []CandidateHint
}

// Line is one balanced side of a proposed correcting entry.
type Line struct {
	Account string
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Proposal is a deterministically derived corrective action. Requires
// external approval unless auto-remediated within threshold, in which
// case Approved is already true.
type Proposal struct {
	Entity         string
	Kind           string
	Amount         decimal.Decimal
	Currency       string
	Narrative      string
	ProposedPeriod string
	PostState      map[string]string
	Approved       bool
	Lines          []Line
}

// Artifact is the externally visible output of one engine run.
type Artifact struct {
	Name        string
	GeneratedAt time.Time
	Period      string
	EntityScope []string
	Rows        []map[string]any
	Exceptions  []Exception
	Proposals   []Proposal
	Summary     map[string]any

	// InputRowIDs are the natural identifiers of every source row the
	// engine consumed, recorded in the matching evidence entry.
	InputRowIDs []string
}

// CanonicalPayload is the hash input: the full output payload minus the
// generation timestamp, so the hash is stable for identical
// (datasets, materiality, period).
func (a *Artifact) CanonicalPayload() map[string]any {
	return a.payload(false)
}

// JSONPayload is the serialized artifact shape, timestamp included.
func (a *Artifact) JSONPayload() map[string]any {
	return a.payload(true)
}

func (a *Artifact) payload(withTimestamp bool) map[string]any {
	exceptions := make([]map[string]any, len(a.Exceptions))
	for i, e := range a.Exceptions {
		exceptions[i] = e.toMap()
	}

	p := map[string]any{
		"name":         a.Name,
		"period":       a.Period,
		"entity_scope": a.EntityScope,
		"exceptions":   exceptions,
		"summary":      a.Summary,
	}
	if withTimestamp {
		p["generated_at"] = a.GeneratedAt.UTC().Format(time.RFC3339)
	}
	if a.Rows != nil {
		p["rows"] = a.Rows
	}
	if a.Proposals != nil {
		proposals := make([]map[string]any, len(a.Proposals))
		for i, pr := range a.Proposals {
			proposals[i] = pr.toMap()
		}
		p["proposals"] = proposals
	}
	return p
}

func (e Exception) toMap() map[string]any {
	m := map[string]any{
		"entity":      e.Entity,
		"identifiers": e.Identifiers,
		"amount":      e.Amount,
		"currency":    e.Currency,
		"reason_code": e.Reason,
		"rationale":   e.Rationale,
	}
	if len(e.Candidates) > 0 {
		hints := make([]map[string]any, len(e.Candidates))
		for i, c := range e.Candidates {
			hints[i] = map[string]any{"row_id": c.RowID, "score": c.Score}
		}
		m["candidates"] = hints
	}
	return m
}

func (p Proposal) toMap() map[string]any {
	m := map[string]any{
		"entity":    p.Entity,
		"kind":      p.Kind,
		"amount":    p.Amount,
		"currency":  p.Currency,
		"narrative": p.Narrative,
		"approved":  p.Approved,
	}
	if p.ProposedPeriod != "" {
		m["proposed_period"] = p.ProposedPeriod
	}
	if len(p.PostState) > 0 {
		post := make(map[string]any, len(p.PostState))
		for k, v := range p.PostState {
			post[k] = v
		}
		m["post_state"] = post
	}
	if len(p.Lines) > 0 {
		lines := make([]map[string]any, len(p.Lines))
		for i, l := range p.Lines {
			lines[i] = map[string]any{
				"account": l.Account,
				"debit":   l.Debit,
				"credit":  l.Credit,
			}
		}
		m["lines"] = lines
	}
	return m
}
