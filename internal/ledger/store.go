package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store persists ledgers in SQLite. Uses WAL mode so readers are not
// blocked by the single writer.
type Store struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect ledger db: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun persists a run's ledger in one transaction. Re-saving the
// same (run_id, seq) is a silent no-op, so a crashed save can be
// retried without duplicating records.
func (s *Store) SaveRun(ctx context.Context, runID, period string, l *Ledger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, period, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`, runID, period, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save run: insert run: %w", err)
	}

	for _, r := range l.Records() {
		if err := insertRecord(ctx, tx, runID, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run: commit: %w", err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, runID string, r Record) error {
	switch r.Type {
	case TypeEvidence:
		rows, err := json.Marshal(r.Evidence.InputRowIDs)
		if err != nil {
			return fmt.Errorf("save run: marshal row ids: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_records
			(run_id, seq, type, evidence_id, uri, input_row_ids, ts)
			VALUES (?, ?, 'evidence', ?, ?, ?, ?)
			ON CONFLICT(run_id, seq) DO NOTHING
		`, runID, r.Evidence.Seq, r.Evidence.ID, r.Evidence.URI, string(rows),
			r.Evidence.TS.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("save run: insert evidence: %w", err)
		}
		return nil

	case TypeDeterministic:
		params, err := json.Marshal(r.Deterministic.Params)
		if err != nil {
			return fmt.Errorf("save run: marshal params: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_records
			(run_id, seq, type, fn, params, output_hash, artifact, ts)
			VALUES (?, ?, 'deterministic', ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, seq) DO NOTHING
		`, runID, r.Deterministic.Seq, r.Deterministic.Fn, string(params),
			r.Deterministic.OutputHash, r.Deterministic.Artifact,
			r.Deterministic.TS.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("save run: insert deterministic: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("save run: unknown record type %q", r.Type)
	}
}

// ReadRun returns a run's records ordered by sequence number.
func (s *Store) ReadRun(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, type, evidence_id, uri, input_row_ids, fn, params, output_hash, artifact, ts
		FROM ledger_records
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			seq                              int64
			typ, ts                          string
			evidenceID, uri, rowIDs          sql.NullString
			fn, params, outputHash, artifact sql.NullString
		)
		if err := rows.Scan(&seq, &typ, &evidenceID, &uri, &rowIDs, &fn, &params, &outputHash, &artifact, &ts); err != nil {
			return nil, fmt.Errorf("read run: scan: %w", err)
		}
		stamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("read run: parse ts: %w", err)
		}

		switch typ {
		case TypeEvidence:
			var ids []string
			if rowIDs.Valid {
				if err := json.Unmarshal([]byte(rowIDs.String), &ids); err != nil {
					return nil, fmt.Errorf("read run: decode row ids: %w", err)
				}
			}
			out = append(out, Record{Type: TypeEvidence, Evidence: &EvidenceRef{
				ID: evidenceID.String, URI: uri.String, InputRowIDs: ids, Seq: seq, TS: stamp,
			}})
		case TypeDeterministic:
			p := map[string]string{}
			if params.Valid {
				if err := json.Unmarshal([]byte(params.String), &p); err != nil {
					return nil, fmt.Errorf("read run: decode params: %w", err)
				}
			}
			out = append(out, Record{Type: TypeDeterministic, Deterministic: &DeterministicRun{
				Fn: fn.String, Params: p, OutputHash: outputHash.String,
				Artifact: artifact.String, Seq: seq, TS: stamp,
			}})
		default:
			return nil, fmt.Errorf("read run: unknown record type %q", typ)
		}
	}
	return out, rows.Err()
}

// RunHashes returns fn → output_hash for a stored run. Used by the
// verify command to compare a re-derived run against the ledger.
func (s *Store) RunHashes(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fn, output_hash FROM ledger_records
		WHERE run_id = ? AND type = 'deterministic'
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("run hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var fn, hash string
		if err := rows.Scan(&fn, &hash); err != nil {
			return nil, fmt.Errorf("run hashes: scan: %w", err)
		}
		out[fn] = hash
	}
	return out, rows.Err()
}

// Runs lists stored run IDs, newest first.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM runs ORDER BY created_at DESC, run_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
