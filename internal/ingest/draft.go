package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/mukkaz/mukkaz/internal/database"
)

// Draft is persisted upload metadata without binaries, letting a user resume
// later. Binary artifacts never touch this table.
type Draft struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        string    `json:"tags"`
	IsPublic    bool      `json:"isPublic"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SaveDraft inserts a new draft or updates the existing row when d.ID is
// set. Saving twice without an ID in between yields one row, not two: the
// first save assigns the ID the second save updates.
func SaveDraft(ctx context.Context, db database.DBTX, d *Draft) error {
	if d.Title == "" {
		d.Title = "Untitled Draft"
	}

	if d.ID == "" {
		err := db.QueryRow(ctx,
			`INSERT INTO video_drafts (user_id, title, description, tags, is_public)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			d.UserID, d.Title, d.Description, d.Tags, d.IsPublic,
		).Scan(&d.ID)
		if err != nil {
			return fmt.Errorf("insert draft: %w", err)
		}
		return nil
	}

	tag, err := db.Exec(ctx,
		`UPDATE video_drafts SET title = $1, description = $2, tags = $3, is_public = $4, updated_at = now()
		 WHERE id = $5 AND user_id = $6`,
		d.Title, d.Description, d.Tags, d.IsPublic, d.ID, d.UserID,
	)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("draft %s not found", d.ID)
	}
	return nil
}

func LoadDraft(ctx context.Context, db database.DBTX, userID, draftID string) (*Draft, error) {
	d := &Draft{ID: draftID, UserID: userID}
	err := db.QueryRow(ctx,
		`SELECT title, description, tags, is_public, updated_at
		 FROM video_drafts WHERE id = $1 AND user_id = $2`,
		draftID, userID,
	).Scan(&d.Title, &d.Description, &d.Tags, &d.IsPublic, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return d, nil
}

func DeleteDraft(ctx context.Context, db database.DBTX, userID, draftID string) error {
	if _, err := db.Exec(ctx,
		`DELETE FROM video_drafts WHERE id = $1 AND user_id = $2`,
		draftID, userID,
	); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func ListDrafts(ctx context.Context, db database.DBTX, userID string) ([]Draft, error) {
	rows, err := db.Query(ctx,
		`SELECT id, title, description, tags, is_public, updated_at
		 FROM video_drafts WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		d := Draft{UserID: userID}
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.Tags, &d.IsPublic, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return drafts, nil
}
