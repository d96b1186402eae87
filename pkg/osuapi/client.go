package osuapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"osugrab/pkg/logger"
	"osugrab/pkg/ratelimit"
)

// Error types for osu! API operations
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an osu! API error
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("osu api %s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Client is the single gateway for calls against the osu! API. Every
// authenticated v2 request passes through Request, which obtains a token,
// settles the rate limit and records the request before the call goes out.
// A request that ultimately fails has still spent quota upstream, so the
// bookkeeping deliberately happens before the response arrives.
type Client struct {
	httpClient *http.Client
	tokens     *TokenSource
	limiter    ratelimit.Limiter
	baseURL    string
	v1BaseURL  string
	apiV1Key   string
	logger     logger.Logger

	sleep func(time.Duration) // swapped out in tests
}

// NewClient creates an API client. Token refresh and v1 lookups bypass the
// limiter; only v2 scoring calls are throttled.
func NewClient(tokens *TokenSource, limiter ratelimit.Limiter, apiV1Key string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		limiter:    limiter,
		baseURL:    BaseURL,
		v1BaseURL:  V1BaseURL,
		apiV1Key:   apiV1Key,
		logger:     log,
		sleep:      time.Sleep,
	}
}

// SetBaseURL overrides the v2 API base URL
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// SetV1BaseURL overrides the legacy v1 API base URL
func (c *Client) SetV1BaseURL(u string) {
	c.v1BaseURL = u
}

// Request performs an authenticated v2 API call and decodes the JSON
// response into target. Any non-2xx response is a hard failure, there is
// no automatic retry.
func (c *Client) Request(method, rawURL string, params url.Values, target interface{}) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	c.settleRateLimit()
	c.limiter.Record()

	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequest(method, rawURL, nil)
	if err != nil {
		return &Error{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.logger.DebugWithFields("sending API request", map[string]interface{}{
		"method": method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorWithFields("API request failed", map[string]interface{}{
			"method": method,
			"url":    req.URL.String(),
			"error":  err.Error(),
		})
		return &Error{
			Type:    ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("API request completed", map[string]interface{}{
		"method":   method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{
			Type:    ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &Error{
			Type:    ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}

	return nil
}

// settleRateLimit waits out a saturated window and discards stale state.
// Saturation is checked once per call: after sleeping out the remainder of
// the period the request proceeds without re-checking. The check and the
// caller's Record are separate lock acquisitions, so racing goroutines may
// briefly overshoot capacity; the budget leaves headroom for that.
func (c *Client) settleRateLimit() {
	if c.limiter.Saturated() {
		wait := c.limiter.UntilReset()
		c.logger.WarnWithFields("rate limit saturated, waiting for window reset", map[string]interface{}{
			"wait": wait,
		})
		if wait > 0 {
			c.sleep(wait)
		}
		c.limiter.Discard()
		return
	}

	// A window whose period has fully elapsed is thrown away rather than
	// re-anchored, a fresh one starts with the next Record.
	if c.limiter.Expired() {
		c.limiter.Discard()
	}
}

// checkResponseStatus maps HTTP status codes onto typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &Error{
			Type:    ErrorTypeAuth,
			Message: "authentication rejected",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		return &Error{
			Type:    ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{
			Type:    ErrorTypeRateLimit,
			Message: "rate limit exceeded",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode >= 500:
		return &Error{
			Type:    ErrorTypeServerError,
			Message: "server error",
			Code:    resp.StatusCode,
		}
	default:
		return &Error{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}

// GetRecentScores fetches a page of a user's most recent plays
func (c *Client) GetRecentScores(userID int, includeFails bool, limit, offset int) ([]Score, error) {
	if limit <= 0 || limit > MaxScoreLimit {
		limit = MaxScoreLimit
	}

	params := url.Values{}
	if includeFails {
		params.Set("include_fails", "1")
	} else {
		params.Set("include_fails", "0")
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var scores []Score
	if err := c.Request(http.MethodGet, RecentScoresEndpoint(c.baseURL, userID), params, &scores); err != nil {
		return nil, fmt.Errorf("failed to fetch recent scores for user %d: %w", userID, err)
	}

	c.logger.DebugWithFields("recent scores fetched", map[string]interface{}{
		"user_id": userID,
		"count":   len(scores),
	})

	return scores, nil
}

// ResolveUserID looks up the numeric id for a username through the legacy
// v1 API. The endpoint is keyed separately and does not count against the
// v2 rate limit.
func (c *Client) ResolveUserID(username string) (int, error) {
	params := url.Values{}
	params.Set("u", username)
	params.Set("k", c.apiV1Key)

	resp, err := c.httpClient.Get(GetUserEndpoint(c.v1BaseURL) + "?" + params.Encode())
	if err != nil {
		return 0, &Error{
			Type:    ErrorTypeNetwork,
			Message: fmt.Sprintf("user lookup failed: %v", err),
		}
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return 0, fmt.Errorf("failed to resolve user %q: %w", username, err)
	}

	var users []V1User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return 0, &Error{
			Type:    ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse user lookup response: %v", err),
			Code:    resp.StatusCode,
		}
	}
	if len(users) == 0 {
		return 0, &Error{
			Type:    ErrorTypeNotFound,
			Message: fmt.Sprintf("no such user: %s", username),
			Code:    resp.StatusCode,
		}
	}

	userID, err := strconv.Atoi(users[0].UserID)
	if err != nil {
		return 0, &Error{
			Type:    ErrorTypeParsing,
			Message: fmt.Sprintf("malformed user id %q: %v", users[0].UserID, err),
		}
	}

	c.logger.DebugWithFields("resolved username", map[string]interface{}{
		"username": username,
		"user_id":  userID,
	})

	return userID, nil
}
