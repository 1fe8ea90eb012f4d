package database

import (
	"fmt"
	"time"
)

// Segment is one archived final transcript segment. Lang is empty for the
// original-language text.
type Segment struct {
	ID        int64
	RoomID    string
	Lang      string
	Text      string
	CreatedAt time.Time
}

func ensureSchema() error {
	_, err := DB.Exec(`
		CREATE TABLE IF NOT EXISTS segments (
			id BIGSERIAL PRIMARY KEY,
			room_id TEXT NOT NULL,
			lang TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS segments_room_idx ON segments (room_id, lang, id);
	`)
	return err
}

// SaveSegment archives one finalized segment for a room.
func SaveSegment(roomID, lang, text string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(
		`INSERT INTO segments (room_id, lang, text) VALUES ($1, $2, $3)`,
		roomID, lang, text,
	)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// ListSegments returns the archived segments for a room and language in
// insertion order.
func ListSegments(roomID, lang string) ([]Segment, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(
		`SELECT id, room_id, lang, text, created_at FROM segments
		 WHERE room_id = $1 AND lang = $2 ORDER BY id`,
		roomID, lang,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var s Segment
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Lang, &s.Text, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}
