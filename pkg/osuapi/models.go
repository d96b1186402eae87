package osuapi

// TokenResponse is the payload returned by the client-credentials exchange
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// V1User is a user record as returned by the legacy v1 API. All fields are
// strings on the wire.
type V1User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Score is a single play from a user's recent history
type Score struct {
	ID         int64      `json:"id"`
	UserID     int        `json:"user_id"`
	Beatmap    Beatmap    `json:"beatmap"`
	Beatmapset Beatmapset `json:"beatmapset"`
}

// Beatmap carries the difficulty attributes a filter can match on.
// Overall difficulty arrives as "accuracy" and HP drain as "drain" on the
// wire, song length is "total_length" in seconds.
type Beatmap struct {
	ID               int     `json:"id"`
	Mode             string  `json:"mode"`
	DifficultyRating float64 `json:"difficulty_rating"`
	AR               float64 `json:"ar"`
	CS               float64 `json:"cs"`
	Accuracy         float64 `json:"accuracy"`
	Drain            float64 `json:"drain"`
	TotalLength      int     `json:"total_length"`
	Version          string  `json:"version"`
}

// Beatmapset identifies the downloadable asset package a beatmap belongs to
type Beatmapset struct {
	ID     int    `json:"id"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
}
