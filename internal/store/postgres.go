package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, updated_by_name, created_at, updated_at
		FROM documents
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.Title, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, plain_text, updated_by_name, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, documentID).Scan(&item.ID, &item.Title, &content, &item.PlainText, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	item.Content = json.RawMessage(content)
	return item, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	content := item.Content
	if len(content) == 0 {
		content = json.RawMessage(`{"type":"doc","content":[]}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, plain_text, updated_by_name)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Title, string(content), item.PlainText, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, item Document) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, content=$3::jsonb, plain_text=$4, updated_by_name=$5, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, string(item.Content), item.PlainText, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update document content: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSettings returns the stored settings. ok is false when the document
// still uses the defaults.
func (s *PostgresStore) GetSettings(ctx context.Context, documentID string) (settings DocumentSettings, ok bool, err error) {
	var toggles []byte
	err = s.db.QueryRowContext(ctx, `
		SELECT document_id, mode, toggles, updated_at
		FROM document_settings
		WHERE document_id=$1
	`, documentID).Scan(&settings.DocumentID, &settings.Mode, &toggles, &settings.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentSettings{}, false, nil
	}
	if err != nil {
		return DocumentSettings{}, false, fmt.Errorf("get document settings: %w", err)
	}
	if err := json.Unmarshal(toggles, &settings.Toggles); err != nil {
		return DocumentSettings{}, false, fmt.Errorf("decode toggles: %w", err)
	}
	return settings, true, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, settings DocumentSettings) error {
	toggles := settings.Toggles
	if toggles == nil {
		toggles = map[string]bool{}
	}
	encoded, err := json.Marshal(toggles)
	if err != nil {
		return fmt.Errorf("marshal toggles: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_settings (document_id, mode, toggles)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (document_id) DO UPDATE SET mode=EXCLUDED.mode, toggles=EXCLUDED.toggles, updated_at=NOW()
	`, settings.DocumentID, settings.Mode, string(encoded))
	if err != nil {
		return fmt.Errorf("save document settings: %w", err)
	}
	return nil
}

// InsertDecisions appends decisions in one transaction.
func (s *PostgresStore) InsertDecisions(ctx context.Context, entries []Decision) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decision tx: %w", err)
	}
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO suggestion_decisions (document_id, suggestion_id, category, status, cause_id, suggestion_text, revision, decided_by_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, entry.DocumentID, entry.SuggestionID, entry.Category, entry.Status, entry.CauseID, entry.Text, int64(entry.Revision), entry.DecidedBy); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert decision %s: %w", entry.SuggestionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decisions: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, documentID, status string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, suggestion_id, category, status, cause_id, suggestion_text, revision, decided_by_name, decided_at
		FROM suggestion_decisions
		WHERE document_id=$1 AND ($2='' OR status=$2)
		ORDER BY decided_at DESC, id DESC
		LIMIT $3
	`, documentID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	items := make([]Decision, 0)
	for rows.Next() {
		var item Decision
		var revision int64
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.SuggestionID,
			&item.Category,
			&item.Status,
			&item.CauseID,
			&item.Text,
			&revision,
			&item.DecidedBy,
			&item.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		item.Revision = uint64(revision)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return items, nil
}

// DecisionCounts aggregates the decision log of a document by category and status.
func (s *PostgresStore) DecisionCounts(ctx context.Context, documentID string) ([]DecisionCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, status, COUNT(*)
		FROM suggestion_decisions
		WHERE document_id=$1
		GROUP BY category, status
		ORDER BY category, status
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()

	items := make([]DecisionCount, 0)
	for rows.Next() {
		var item DecisionCount
		if err := rows.Scan(&item.Category, &item.Status, &item.Count); err != nil {
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision counts: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
