package osuapi

import "fmt"

const (
	// BaseURL is the base URL for the v2 scoring API
	BaseURL = "https://osu.ppy.sh/api/v2"

	// TokenURL is the OAuth client-credentials exchange endpoint
	TokenURL = "https://osu.ppy.sh/oauth/token"

	// V1BaseURL is the base URL for the legacy v1 API. Username resolution
	// is only available there.
	V1BaseURL = "https://osu.ppy.sh/api"

	// MaxScoreLimit is the largest recent-scores page the API serves
	MaxScoreLimit = 100
)

// RecentScoresEndpoint returns the path for a user's recent scores
func RecentScoresEndpoint(base string, userID int) string {
	return fmt.Sprintf("%s/users/%d/scores/recent", base, userID)
}

// GetUserEndpoint returns the v1 user lookup path
func GetUserEndpoint(base string) string {
	return base + "/get_user"
}
