package models

import (
	"encoding/json"
	"fmt"
)

type Profile struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Bio    string `json:"bio"`
	Image  string `json:"image"`
}

func ProfileFromRecord(rec Record) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile record %s: %w", rec.ID, err)
	}
	p.ID = rec.ID
	return p, nil
}
