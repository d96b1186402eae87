package osuapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"osugrab/pkg/logger"
)

// expiryMargin pads the stored expiry so a token is never handed out when
// it could lapse while a request is in flight.
const expiryMargin = 20 * time.Second

// TokenSource caches a bearer token obtained through the client-credentials
// exchange and refreshes it on demand. The mutex makes the check-and-refresh
// sequence exclusive, so racing callers trigger at most one exchange.
type TokenSource struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	logger       logger.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time

	now func() time.Time // swapped out in tests
}

// NewTokenSource creates a token source for the given OAuth client
func NewTokenSource(clientID, clientSecret string, timeout time.Duration, log logger.Logger) *TokenSource {
	if log == nil {
		log = logger.GetLogger()
	}

	return &TokenSource{
		httpClient:   &http.Client{Timeout: timeout},
		tokenURL:     TokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       log,
		now:          time.Now,
	}
}

// SetTokenURL overrides the exchange endpoint
func (ts *TokenSource) SetTokenURL(u string) {
	ts.tokenURL = u
}

// Token returns a currently valid bearer token, refreshing it first if the
// cached one is absent or within the expiry margin. A failed exchange
// caches nothing, so the next caller retries from scratch.
func (ts *TokenSource) Token() (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	// Another caller may have refreshed while we waited on the lock
	if ts.token != "" && !ts.expired() {
		return ts.token, nil
	}
	ts.token = ""

	ts.logger.Debug("refreshing bearer token")

	resp, err := ts.httpClient.PostForm(ts.tokenURL, url.Values{
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {"public"},
	})
	if err != nil {
		return "", &Error{
			Type:    ErrorTypeNetwork,
			Message: fmt.Sprintf("token exchange failed: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ts.logger.ErrorWithFields("token exchange rejected", map[string]interface{}{
			"status": resp.StatusCode,
		})
		return "", &Error{
			Type:    ErrorTypeAuth,
			Message: "token exchange rejected",
			Code:    resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{
			Type:    ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read token response: %v", err),
			Code:    resp.StatusCode,
		}
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &Error{
			Type:    ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse token response: %v", err),
			Code:    resp.StatusCode,
		}
	}

	ts.token = tr.AccessToken
	ts.expiry = ts.now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	ts.logger.DebugWithFields("bearer token refreshed", map[string]interface{}{
		"expires_in": tr.ExpiresIn,
	})

	return ts.token, nil
}

// expired reports whether the cached expiry is inside the safety margin.
// Callers must hold the mutex.
func (ts *TokenSource) expired() bool {
	return ts.expiry.Sub(ts.now()) < expiryMargin
}

// Invalidate drops the cached token so the next caller refreshes
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiry = time.Time{}
}
