package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	var basic, additional, spouse, prefs []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, basic_details, additional_details, spouse_details, preferences, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &basic, &additional, &spouse, &prefs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Profile{}, err
		}
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}

	if err := unmarshalSections(&p, basic, additional, spouse, prefs); err != nil {
		return Profile{}, err
	}

	return p, nil
}

// Upsert writes all four sections for the account in one statement and
// reports whether the row already existed.
func (r *Repository) Upsert(ctx context.Context, userID string, input Input) (Profile, bool, error) {
	basic, err := json.Marshal(input.BasicDetails)
	if err != nil {
		return Profile{}, false, fmt.Errorf("marshal basic details: %w", err)
	}
	additional, err := json.Marshal(input.AdditionalDetails)
	if err != nil {
		return Profile{}, false, fmt.Errorf("marshal additional details: %w", err)
	}
	spouse, err := json.Marshal(input.SpouseDetails)
	if err != nil {
		return Profile{}, false, fmt.Errorf("marshal spouse details: %w", err)
	}
	prefs, err := json.Marshal(input.Preferences)
	if err != nil {
		return Profile{}, false, fmt.Errorf("marshal preferences: %w", err)
	}

	now := time.Now().UTC()

	var p Profile
	var created time.Time
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, basic_details, additional_details, spouse_details, preferences, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			basic_details = EXCLUDED.basic_details,
			additional_details = EXCLUDED.additional_details,
			spouse_details = EXCLUDED.spouse_details,
			preferences = EXCLUDED.preferences,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`, userID, basic, additional, spouse, prefs, now).Scan(&created)
	if err != nil {
		return Profile{}, false, fmt.Errorf("upsert profile: %w", err)
	}

	p.UserID = userID
	p.BasicDetails = input.BasicDetails
	p.AdditionalDetails = input.AdditionalDetails
	p.SpouseDetails = input.SpouseDetails
	p.Preferences = input.Preferences
	p.CreatedAt = created.UTC()
	p.UpdatedAt = now

	existed := created.UTC().Before(now)

	return p, existed, nil
}

func unmarshalSections(p *Profile, basic, additional, spouse, prefs []byte) error {
	if err := json.Unmarshal(basic, &p.BasicDetails); err != nil {
		return fmt.Errorf("decode basic details: %w", err)
	}
	if err := json.Unmarshal(additional, &p.AdditionalDetails); err != nil {
		return fmt.Errorf("decode additional details: %w", err)
	}
	if err := json.Unmarshal(spouse, &p.SpouseDetails); err != nil {
		return fmt.Errorf("decode spouse details: %w", err)
	}
	if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
		return fmt.Errorf("decode preferences: %w", err)
	}

	return nil
}
