package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Like logically keys on (user_id, post_id). Uniqueness of the pair is
// intended but not enforced, so consumers must tolerate duplicates.
type Like struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PostID    string    `json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

func LikeFromRecord(rec Record) (Like, error) {
	var body struct {
		UserID    string `json:"user_id"`
		PostID    string `json:"post_id"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(rec.Payload, &body); err != nil {
		return Like{}, fmt.Errorf("failed to decode like record %s: %w", rec.ID, err)
	}

	return Like{
		ID:        rec.ID,
		UserID:    body.UserID,
		PostID:    body.PostID,
		CreatedAt: parseCreatedAt(body.CreatedAt, rec.CreatedAt),
	}, nil
}
