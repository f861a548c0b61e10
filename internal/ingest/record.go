package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/mukkaz/mukkaz/internal/database"
)

// Record is the persisted shape of a finished upload. Which backend served
// the binary shows only through which fields are populated: StreamID and
// StreamURL for the streaming host, URL for the object store.
type Record struct {
	ID              string   `json:"id"`
	UserID          string   `json:"userId"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            string   `json:"tags"`
	ThumbnailURL    string   `json:"thumbnailUrl"`
	Duration        int      `json:"duration"`
	Resolution      string   `json:"resolution"`
	IsPublic        bool     `json:"isPublic"`
	CommentsEnabled bool     `json:"commentsEnabled"`
	StreamID        string   `json:"streamId,omitempty"`
	StreamURL       string   `json:"streamUrl,omitempty"`
	URL             string   `json:"url,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

func insertRecord(ctx context.Context, db database.DBTX, rec *Record) error {
	var streamID, streamURL, url *string
	if rec.StreamID != "" {
		streamID = &rec.StreamID
		streamURL = &rec.StreamURL
	} else {
		url = &rec.URL
	}

	err := db.QueryRow(ctx,
		`INSERT INTO videos (user_id, title, description, tags, thumbnail_url, views_count, duration, resolution, is_public, comments_enabled, stream_id, stream_url, url)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		rec.UserID, rec.Title, rec.Description, rec.Tags, rec.ThumbnailURL,
		rec.Duration, rec.Resolution, rec.IsPublic, rec.CommentsEnabled,
		streamID, streamURL, url,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// NormalizeTag lowercases and collapses internal whitespace.
func NormalizeTag(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// FlattenTags normalizes, dedupes and joins tags into the comma-delimited
// string the videos and video_drafts tables store. The flattened shape is
// what readers round-trip with strings.Split, so it must stay a plain join.
func FlattenTags(tags []string) string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return strings.Join(out, ",")
}

// SplitTags is the inverse of FlattenTags for readers.
func SplitTags(flat string) []string {
	if flat == "" {
		return nil
	}
	parts := strings.Split(flat, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
