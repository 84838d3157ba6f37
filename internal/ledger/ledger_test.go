package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)
	}
}

func TestLedger_AppendOrdering(t *testing.T) {
	l := New(fixedClock())

	ev := l.AppendEvidence("fx_translation", "out/fx.json", []string{"ENT_B|2000", "ENT_A|1000"})
	dr := l.AppendDeterministic("fx_translation", map[string]string{"period": "2025-08"}, "abc123", "out/fx.json")

	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, int64(2), dr.Seq)

	// Row IDs are stored sorted regardless of input order.
	assert.Equal(t, []string{"ENT_A|1000", "ENT_B|2000"}, ev.InputRowIDs)

	recs := l.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, TypeEvidence, recs[0].Type)
	assert.Equal(t, TypeDeterministic, recs[1].Type)
}

func TestLedger_ConcurrentAppendsUniqueSeq(t *testing.T) {
	l := New(fixedClock())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.AppendEvidence("e", "uri", nil)
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, r := range l.Records() {
		seq := r.Seq()
		assert.False(t, seen[seq], "duplicate seq %d", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, 50)
}

func TestLedger_Hashes(t *testing.T) {
	l := New(fixedClock())
	l.AppendDeterministic("fx_translation", nil, "hash-fx", "out/fx.json")
	l.AppendDeterministic("bank_reconciliation", nil, "hash-bank", "out/bank.json")

	h := l.Hashes()
	assert.Equal(t, "hash-fx", h["fx_translation"])
	assert.Equal(t, "hash-bank", h["bank_reconciliation"])
}

func TestLedger_WriteJSONL(t *testing.T) {
	l := New(fixedClock())
	l.AppendEvidence("fx_translation", "out/fx.json", []string{"ENT_A|1000"})
	l.AppendDeterministic("fx_translation", map[string]string{"period": "2025-08"}, "abc", "out/fx.json")

	var buf bytes.Buffer
	require.NoError(t, l.WriteJSONL(&buf))

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "evidence", lines[0]["type"])
	assert.Equal(t, "out/fx.json", lines[0]["uri"])
	assert.Equal(t, []any{"ENT_A|1000"}, lines[0]["input_row_ids"])

	assert.Equal(t, "deterministic", lines[1]["type"])
	assert.Equal(t, "fx_translation", lines[1]["fn"])
	assert.Equal(t, "abc", lines[1]["output_hash"])
}
