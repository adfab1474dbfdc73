// Package sqlite persists the in-memory store to a SQLite file. The full
// state is written as JSON buckets after every committed transaction and
// loaded back on open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/ehr/adtcore/internal/platform/store/memory"
)

// Store is a memory store whose commits are snapshotted to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// Open loads the state at path, creating the file when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "adtcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.OnCommit(s.persist)
	return s, nil
}

// buckets maps each bucket name to its slot in a snapshot.
func buckets(snap *memory.Snapshot) map[string]any {
	return map[string]any{
		"patients":              &snap.Patients,
		"visits":                &snap.Visits,
		"visit_audits":          &snap.VisitAudits,
		"locations":             &snap.Locations,
		"location_visits":       &snap.LocationVisits,
		"location_visit_audits": &snap.LocationVisitAudits,
		"lab_orders":            &snap.LabOrders,
		"lab_order_audits":      &snap.LabOrderAudits,
		"lab_results":           &snap.LabResults,
		"lab_result_audits":     &snap.LabResultAudits,
		"consults":              &snap.Consults,
		"consult_audits":        &snap.ConsultAudits,
		"forms":                 &snap.Forms,
		"form_audits":           &snap.FormAudits,
		"form_answers":          &snap.FormAnswers,
		"form_answer_audits":    &snap.FormAnswerAudits,
	}
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snap memory.Snapshot
	slots := buckets(&snap)
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		slot, ok := slots[bucket]
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, slot); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		s.ImportState(snap)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, snap memory.Snapshot) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for bucket, slot := range buckets(&snap) {
		data, err := json.Marshal(slot)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?)
			ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Ping checks the SQLite file is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }
