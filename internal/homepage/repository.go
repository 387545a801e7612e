package homepage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetActive returns the currently active content document.
func (r *Repository) GetActive(ctx context.Context) (Content, error) {
	var content Content
	var hero, cards []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, hero_section, feature_cards, updated_at
		FROM homepage_content
		WHERE is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&content.ID, &hero, &cards, &content.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Content{}, err
		}
		return Content{}, fmt.Errorf("query homepage content: %w", err)
	}

	if err := json.Unmarshal(hero, &content.HeroSection); err != nil {
		return Content{}, fmt.Errorf("decode hero section: %w", err)
	}
	if err := json.Unmarshal(cards, &content.FeatureCards); err != nil {
		return Content{}, fmt.Errorf("decode feature cards: %w", err)
	}

	sort.Slice(content.FeatureCards, func(i, j int) bool {
		return content.FeatureCards[i].Order < content.FeatureCards[j].Order
	})

	return content, nil
}
