package osuapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osugrab/pkg/ratelimit"
)

const scoresPayload = `[
	{
		"id": 9001,
		"user_id": 1023489,
		"beatmap": {
			"id": 321,
			"mode": "osu",
			"difficulty_rating": 6.0,
			"ar": 9.3,
			"cs": 4.0,
			"accuracy": 8.5,
			"drain": 5.0,
			"total_length": 211,
			"version": "Extreme"
		},
		"beatmapset": {"id": 123456, "artist": "Camellia", "title": "GHOST"}
	}
]`

func newClientForTest(t *testing.T, apiHandler http.Handler, limiter ratelimit.Limiter) (*Client, *httptest.Server, *int32) {
	t.Helper()

	var tokenCalls int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"testtoken","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenServer.Close)

	apiServer := httptest.NewServer(apiHandler)
	t.Cleanup(apiServer.Close)

	tokens := NewTokenSource("1234", "hunter2", 5*time.Second, nil)
	tokens.SetTokenURL(tokenServer.URL)

	if limiter == nil {
		limiter = ratelimit.NewWindow(500, time.Minute)
	}

	client := NewClient(tokens, limiter, "v1key", 5*time.Second, nil)
	client.SetBaseURL(apiServer.URL)
	client.SetV1BaseURL(apiServer.URL)

	return client, apiServer, &tokenCalls
}

func TestRequestSendsBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})

	client, _, _ := newClientForTest(t, handler, nil)

	var out map[string]interface{}
	require.NoError(t, client.Request(http.MethodGet, client.baseURL+"/me", nil, &out))
	assert.Equal(t, "Bearer testtoken", gotAuth.Load())
}

func TestRequestNon2xxIsHardFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client, _, _ := newClientForTest(t, handler, nil)

	var out map[string]interface{}
	err := client.Request(http.MethodGet, client.baseURL+"/me", nil, &out)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorTypeServerError, apiErr.Type)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Code)
}

func TestFailedRequestStillConsumesQuota(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	window := ratelimit.NewWindow(500, time.Minute)
	client, _, _ := newClientForTest(t, handler, window)

	var out map[string]interface{}
	err := client.Request(http.MethodGet, client.baseURL+"/gone", nil, &out)
	require.Error(t, err)

	// Quota was spent upstream regardless of the outcome
	assert.Equal(t, 1, window.Count())
}

func TestTokenExchangeIsNotRateLimited(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})

	window := ratelimit.NewWindow(500, time.Minute)
	client, _, tokenCalls := newClientForTest(t, handler, window)

	var out map[string]interface{}
	require.NoError(t, client.Request(http.MethodGet, client.baseURL+"/me", nil, &out))

	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls))
	assert.Equal(t, 1, window.Count(), "only the scoring call counts against the window")
}

func TestSaturatedWindowWaitsThenDiscards(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})

	window := ratelimit.NewWindow(1, time.Minute)
	client, _, _ := newClientForTest(t, handler, window)

	var slept time.Duration
	client.sleep = func(d time.Duration) { slept = d }

	window.Record() // saturate
	require.True(t, window.Saturated())

	var out map[string]interface{}
	require.NoError(t, client.Request(http.MethodGet, client.baseURL+"/me", nil, &out))

	assert.Greater(t, slept, time.Duration(0), "gateway must wait out the window remainder")
	assert.Equal(t, 1, window.Count(), "window restarts fresh with only this call recorded")
}

// stubLimiter is a Limiter that is not a *ratelimit.Window
type stubLimiter struct {
	recorded  int
	expired   bool
	discarded int
}

func (l *stubLimiter) Record()                   { l.recorded++ }
func (l *stubLimiter) Saturated() bool           { return false }
func (l *stubLimiter) UntilReset() time.Duration { return 0 }
func (l *stubLimiter) Expired() bool             { return l.expired }
func (l *stubLimiter) Discard()                  { l.discarded++; l.expired = false }

func TestStaleWindowDiscardedForAnyLimiter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})

	limiter := &stubLimiter{expired: true}
	client, _, _ := newClientForTest(t, handler, limiter)

	var out map[string]interface{}
	require.NoError(t, client.Request(http.MethodGet, client.baseURL+"/me", nil, &out))

	assert.Equal(t, 1, limiter.discarded, "elapsed window must be discarded regardless of limiter type")
	assert.Equal(t, 1, limiter.recorded)
}

func TestExpiredWindowIsDiscardedLazily(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})

	window := ratelimit.NewWindow(5, 10*time.Millisecond)
	client, _, _ := newClientForTest(t, handler, window)

	window.Record()
	window.Record()
	time.Sleep(20 * time.Millisecond)
	require.True(t, window.Expired())

	var out map[string]interface{}
	require.NoError(t, client.Request(http.MethodGet, client.baseURL+"/me", nil, &out))

	assert.Equal(t, 1, window.Count(), "stale window replaced before recording")
}

func TestGetRecentScores(t *testing.T) {
	var gotQuery atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		assert.Contains(t, r.URL.Path, "/users/1023489/scores/recent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, scoresPayload)
	})

	client, _, _ := newClientForTest(t, handler, nil)

	scores, err := client.GetRecentScores(1023489, true, 100, 0)
	require.NoError(t, err)
	require.Len(t, scores, 1)

	score := scores[0]
	assert.Equal(t, "osu", score.Beatmap.Mode)
	assert.Equal(t, 6.0, score.Beatmap.DifficultyRating)
	assert.Equal(t, 9.3, score.Beatmap.AR)
	assert.Equal(t, 211, score.Beatmap.TotalLength)
	assert.Equal(t, 123456, score.Beatmapset.ID)

	query := gotQuery.Load().(string)
	assert.Contains(t, query, "include_fails=1")
	assert.Contains(t, query, "limit=100")
	assert.Contains(t, query, "offset=0")
}

func TestResolveUserID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/get_user")
		assert.Equal(t, "mrekk", r.URL.Query().Get("u"))
		assert.Equal(t, "v1key", r.URL.Query().Get("k"))
		assert.Empty(t, r.Header.Get("Authorization"), "v1 lookup is keyed, not bearer-authenticated")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"user_id":"1023489","username":"mrekk"}]`)
	})

	window := ratelimit.NewWindow(500, time.Minute)
	client, _, tokenCalls := newClientForTest(t, handler, window)

	userID, err := client.ResolveUserID("mrekk")
	require.NoError(t, err)
	assert.Equal(t, 1023489, userID)

	assert.Equal(t, 0, window.Count(), "v1 lookup bypasses the rate limiter")
	assert.Equal(t, int32(0), atomic.LoadInt32(tokenCalls), "v1 lookup needs no bearer token")
}

func TestResolveUserIDUnknownUser(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	})

	client, _, _ := newClientForTest(t, handler, nil)

	_, err := client.ResolveUserID("nobody")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorTypeNotFound, apiErr.Type)
}
