package engine

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// maxCandidateHints caps the advisory nearest-peer list per exception.
const maxCandidateHints = 3

// Peer is one comparable record for candidate scoring. Days is the
// record's position on a day axis: days since epoch for dated records,
// age in days for aged subledger records.
type Peer struct {
	ID     string
	Amount decimal.Decimal
	Days   int64
}

// scorePeers returns up to maxCandidateHints nearest peers of target,
// scored by amount and day proximity. The score is
// 1 / (1 + |amount delta| + |day delta|), rounded to 4dp, so identical
// peers score 1 and similarity decays with distance. Sorted descending
// by score; ties broken by ascending identifier. Fully deterministic.
func scorePeers(target Peer, pool []Peer) []CandidateHint {
	hints := make([]CandidateHint, 0, len(pool))
	for _, p := range pool {
		if p.ID == target.ID {
			continue
		}
		dayDelta := target.Days - p.Days
		if dayDelta < 0 {
			dayDelta = -dayDelta
		}
		denom := one.
			Add(target.Amount.Sub(p.Amount).Abs()).
			Add(decimal.NewFromInt(dayDelta))
		hints = append(hints, CandidateHint{
			RowID: p.ID,
			Score: one.DivRound(denom, 4),
		})
	}

	slices.SortFunc(hints, func(a, b CandidateHint) int {
		if c := b.Score.Cmp(a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.RowID, b.RowID)
	})

	if len(hints) > maxCandidateHints {
		hints = hints[:maxCandidateHints]
	}
	return hints
}

// epochDays converts a time axis to whole days for scoring.
func epochDays(unixSeconds int64) int64 {
	return unixSeconds / 86400
}
