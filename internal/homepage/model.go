package homepage

import "time"

type HeroSection struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type FeatureCard struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IconName    string `json:"iconName"`
	Order       int    `json:"order"`
}

type Content struct {
	ID           string        `json:"id"`
	HeroSection  HeroSection   `json:"heroSection"`
	FeatureCards []FeatureCard `json:"featureCards"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}
