package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Comment carries a snapshot of the author's profile taken when the
// comment list was fetched. It is not kept live.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PostID    string    `json:"post_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Profile   Profile   `json:"profile"`
}

func CommentFromRecord(rec Record) (Comment, error) {
	var body struct {
		UserID    string  `json:"user_id"`
		PostID    string  `json:"post_id"`
		Text      string  `json:"text"`
		CreatedAt string  `json:"created_at"`
		Profile   Profile `json:"profile"`
	}
	if err := json.Unmarshal(rec.Payload, &body); err != nil {
		return Comment{}, fmt.Errorf("failed to decode comment record %s: %w", rec.ID, err)
	}

	return Comment{
		ID:        rec.ID,
		UserID:    body.UserID,
		PostID:    body.PostID,
		Text:      body.Text,
		CreatedAt: parseCreatedAt(body.CreatedAt, rec.CreatedAt),
		Profile:   body.Profile,
	}, nil
}
