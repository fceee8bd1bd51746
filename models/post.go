package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	VideoURL  string    `json:"video_url"`
	CreatedAt time.Time `json:"created_at"`
	Profile   Profile   `json:"profile"`
}

func PostFromRecord(rec Record) (Post, error) {
	var body struct {
		UserID    string  `json:"user_id"`
		Text      string  `json:"text"`
		VideoURL  string  `json:"video_url"`
		CreatedAt string  `json:"created_at"`
		Profile   Profile `json:"profile"`
	}
	if err := json.Unmarshal(rec.Payload, &body); err != nil {
		return Post{}, fmt.Errorf("failed to decode post record %s: %w", rec.ID, err)
	}

	return Post{
		ID:        rec.ID,
		UserID:    body.UserID,
		Text:      body.Text,
		VideoURL:  body.VideoURL,
		CreatedAt: parseCreatedAt(body.CreatedAt, rec.CreatedAt),
		Profile:   body.Profile,
	}, nil
}
