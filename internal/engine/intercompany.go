package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvanraamsdonk/closegate/internal/domain"
)

// Intercompany reason codes. The mismatch check and the forensic
// pattern checks are independent: one document can trigger several.
const (
	ReasonICMismatch            = "ic_amount_mismatch_above_threshold"
	ReasonICRoundDollar         = "ic_round_dollar_anomaly"
	ReasonICTransferPricingRisk = "ic_transfer_pricing_risk"
	ReasonICStructuring         = "ic_structuring_pattern"
)

// Forensic policy constants.
var (
	icRoundDollarFloor    = decimal.NewFromInt(10000)
	icRoundDollarUnit     = decimal.NewFromInt(1000)
	icTransferPricingOver = decimal.NewFromInt(50000)
	icStructuringUnder    = decimal.NewFromInt(10000)
)

const icStructuringMinCount = 3

// ICReconciliation compares both legs of every intercompany document
// and runs forensic pattern checks over the population. Each mismatch
// above the pair threshold also yields a true-up proposal adjusting the
// destination leg to match the source.
type ICReconciliation struct{}

func (ICReconciliation) Name() string      { return NameIntercompany }
func (ICReconciliation) Namespace() string { return "ic" }

func (e ICReconciliation) Run(ctx context.Context, env *Env) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := env.State.Datasets
	if ds == nil || len(ds.Intercompany) == 0 {
		return nil, &SchemaGapError{Engine: e.Name(), Missing: "intercompany"}
	}

	docs := slices.Clone(ds.Intercompany)
	slices.SortFunc(docs, func(a, b domain.ICDoc) int {
		return strings.Compare(a.ID, b.ID)
	})

	var (
		inputIDs         []string
		exceptions       []Exception
		proposals        []Proposal
		mismatchCount    int64
		totalMismatchAbs = decimal.Zero
	)

	for _, d := range docs {
		inputIDs = append(inputIDs, d.ID)

		diff := round2(d.AmountSrc.Sub(d.AmountDst).Abs())
		threshold := decimal.Max(env.State.Threshold(d.SrcEntity), env.State.Threshold(d.DstEntity))
		if diff.GreaterThan(threshold) {
			mismatchCount++
			totalMismatchAbs = totalMismatchAbs.Add(diff)
			exceptions = append(exceptions, Exception{
				Entity:      d.SrcEntity,
				Identifiers: []string{d.ID},
				Amount:      diff,
				Currency:    d.Currency,
				Reason:      ReasonICMismatch,
				Rationale: fmt.Sprintf("src %s and dst %s legs differ by %s, threshold %s",
					d.AmountSrc, d.AmountDst, diff, threshold),
			})
			proposals = append(proposals, Proposal{
				Entity:   d.DstEntity,
				Kind:     "ic_true_up",
				Amount:   round2(d.AmountSrc.Sub(d.AmountDst)),
				Currency: d.Currency,
				Narrative: fmt.Sprintf("True up %s destination leg from %s to %s to match source",
					d.ID, d.AmountDst, d.AmountSrc),
				PostState: map[string]string{
					"amount_src": d.AmountSrc.String(),
					"amount_dst": d.AmountSrc.String(),
					"diff":       "0",
				},
			})
		}

		if d.AmountSrc.GreaterThanOrEqual(icRoundDollarFloor) && d.AmountSrc.Mod(icRoundDollarUnit).IsZero() {
			exceptions = append(exceptions, Exception{
				Entity:      d.SrcEntity,
				Identifiers: []string{d.ID},
				Amount:      d.AmountSrc,
				Currency:    d.Currency,
				Reason:      ReasonICRoundDollar,
				Rationale:   fmt.Sprintf("round-dollar amount %s at or above %s", d.AmountSrc, icRoundDollarFloor),
			})
		}

		if strings.Contains(strings.ToLower(d.TxnType), "management fee") &&
			d.AmountSrc.GreaterThan(icTransferPricingOver) {
			exceptions = append(exceptions, Exception{
				Entity:      d.SrcEntity,
				Identifiers: []string{d.ID},
				Amount:      d.AmountSrc,
				Currency:    d.Currency,
				Reason:      ReasonICTransferPricingRisk,
				Rationale:   fmt.Sprintf("management fee of %s exceeds %s", d.AmountSrc, icTransferPricingOver),
			})
		}
	}

	exceptions = append(exceptions, structuringGroups(docs)...)

	w := env.Metrics
	if err := w.SetInt("exception_count", int64(len(exceptions))); err != nil {
		return nil, err
	}
	if err := w.SetInt("mismatch_count", mismatchCount); err != nil {
		return nil, err
	}
	if err := w.SetDec("total_mismatch_abs", totalMismatchAbs); err != nil {
		return nil, err
	}

	return &Artifact{
		Name:        e.Name(),
		Period:      env.State.Period.String(),
		EntityScope: env.State.EntityScope,
		Exceptions:  exceptions,
		Proposals:   proposals,
		Summary: map[string]any{
			"exception_count":    int64(len(exceptions)),
			"mismatch_count":     mismatchCount,
			"total_mismatch_abs": totalMismatchAbs,
			"documents":          int64(len(docs)),
		},
		InputRowIDs: inputIDs,
	}, nil
}

// structuringGroups flags groups of 3 or more same-pair documents under
// the structuring limit on the same date. One exception per group,
// carrying every member identifier.
func structuringGroups(docs []domain.ICDoc) []Exception {
	groups := map[string][]domain.ICDoc{}
	for _, d := range docs {
		if d.AmountSrc.GreaterThanOrEqual(icStructuringUnder) {
			continue
		}
		key := strings.Join([]string{
			d.SrcEntity, d.DstEntity, d.Date.UTC().Format("2006-01-02"),
		}, "|")
		groups[key] = append(groups[key], d)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var exceptions []Exception
	for _, key := range keys {
		group := groups[key]
		if len(group) < icStructuringMinCount {
			continue
		}
		ids := make([]string, 0, len(group))
		total := decimal.Zero
		for _, d := range group {
			ids = append(ids, d.ID)
			total = total.Add(d.AmountSrc)
		}
		slices.Sort(ids)
		exceptions = append(exceptions, Exception{
			Entity:      group[0].SrcEntity,
			Identifiers: ids,
			Amount:      round2(total),
			Currency:    group[0].Currency,
			Reason:      ReasonICStructuring,
			Rationale: fmt.Sprintf("%d same-pair documents under %s on %s",
				len(group), icStructuringUnder, group[0].Date.UTC().Format("2006-01-02")),
		})
	}
	return exceptions
}
