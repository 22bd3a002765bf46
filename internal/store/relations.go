package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/codex/internal/apperr"
)

// UpsertPassage inserts a passage if the (start, end) range is new and
// returns the row id either way. The endpoints are weak references into
// the external store; nothing is resolved here.
func (s *Store) UpsertPassage(ctx context.Context, startVerseID, endVerseID int64, citation *string) (int64, error) {
	if startVerseID > endVerseID {
		return 0, fmt.Errorf("store: passage range %d..%d inverted", startVerseID, endVerseID)
	}
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO passage (start_verse_id, end_verse_id, citation)
			VALUES (?, ?, ?)
			ON CONFLICT(start_verse_id, end_verse_id) DO NOTHING
		`, startVerseID, endVerseID, citation)
		if err != nil {
			return fmt.Errorf("store: upsert passage: %w", err)
		}
		return tx.QueryRow(`SELECT id FROM passage WHERE start_verse_id = ? AND end_verse_id = ?`,
			startVerseID, endVerseID).Scan(&id)
	})
	return id, err
}

// SetPassageCitation stores the rendered citation label for a passage.
func (s *Store) SetPassageCitation(ctx context.Context, id int64, citation string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE passage SET citation = ? WHERE id = ?`, citation, id)
		if err != nil {
			return fmt.Errorf("store: set passage citation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: passage %d: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

// LinkNotePassage associates a note with a passage under the given relation.
func (s *Store) LinkNotePassage(ctx context.Context, noteID, passageID int64, relation string) error {
	if relation == "" {
		relation = RelMentions
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO note_passage (note_id, passage_id, relation) VALUES (?, ?, ?)
		`, noteID, passageID, relation)
		if err != nil {
			return fmt.Errorf("store: link note passage: %w", err)
		}
		return nil
	})
}

// NotePassages returns the passages linked to a note with their relations.
func (s *Store) NotePassages(ctx context.Context, noteID int64) ([]Passage, []string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT p.id, p.start_verse_id, p.end_verse_id, p.citation, np.relation
		FROM note_passage np
		JOIN passage p ON p.id = np.passage_id
		WHERE np.note_id = ?
		ORDER BY p.id
	`, noteID)
	if err != nil {
		return nil, nil, fmt.Errorf("store: note passages: %w", err)
	}
	defer rows.Close()

	var (
		passages  []Passage
		relations []string
	)
	for rows.Next() {
		var (
			p        Passage
			citation sql.NullString
			relation string
		)
		if err := rows.Scan(&p.ID, &p.StartVerseID, &p.EndVerseID, &citation, &relation); err != nil {
			return nil, nil, err
		}
		p.Citation = nullString(citation)
		passages = append(passages, p)
		relations = append(relations, relation)
	}
	return passages, relations, rows.Err()
}

// EnsureTag returns the id of the named tag, creating it if needed.
func (s *Store) EnsureTag(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tag (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("store: ensure tag: %w", err)
		}
		return tx.QueryRow(`SELECT id FROM tag WHERE name = ?`, name).Scan(&id)
	})
	return id, err
}

// TagNote attaches a tag to a note.
func (s *Store) TagNote(ctx context.Context, noteID, tagID int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR IGNORE INTO note_tag (note_id, tag_id) VALUES (?, ?)`, noteID, tagID)
		if err != nil {
			return fmt.Errorf("store: tag note: %w", err)
		}
		return nil
	})
}

// LinkNotes adds a typed directed edge between two notes. Self-links are
// rejected here because OR IGNORE would otherwise swallow the schema's
// CHECK violation along with legitimate duplicate edges.
func (s *Store) LinkNotes(ctx context.Context, fromID, toID int64, linkType string) error {
	if fromID == toID {
		return fmt.Errorf("store: note %d links to itself: %w", fromID, apperr.ErrConflict)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO note_link (from_note_id, to_note_id, type) VALUES (?, ?, ?)
		`, fromID, toID, linkType)
		if err != nil {
			return fmt.Errorf("store: link notes: %w", err)
		}
		return nil
	})
}

// UpsertEmbeddingModel registers a named model with fixed dimensionality.
func (s *Store) UpsertEmbeddingModel(ctx context.Context, name string, dimensions int, metric string) (int64, error) {
	if metric == "" {
		metric = "cosine"
	}
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO embedding_model (name, dimensions, metric) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET dimensions = excluded.dimensions, metric = excluded.metric
		`, name, dimensions, metric)
		if err != nil {
			return fmt.Errorf("store: upsert embedding model: %w", err)
		}
		return tx.QueryRow(`SELECT id FROM embedding_model WHERE name = ?`, name).Scan(&id)
	})
	return id, err
}

// SetNoteEmbedding stores a collaborator-supplied vector for (note, model).
// No distance computation happens here.
func (s *Store) SetNoteEmbedding(ctx context.Context, noteID, modelID int64, vector []byte) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO note_embedding (note_id, model_id, vector) VALUES (?, ?, ?)
			ON CONFLICT(note_id, model_id) DO UPDATE SET vector = excluded.vector
		`, noteID, modelID, vector)
		if err != nil {
			return fmt.Errorf("store: set note embedding: %w", err)
		}
		return nil
	})
}
