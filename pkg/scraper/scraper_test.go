package scraper

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osugrab/pkg/config"
	"osugrab/pkg/osuapi"
)

// testHarness bundles the mock servers one fetch cycle talks to
type testHarness struct {
	tokenCalls  int32
	scoreCalls  int32
	mirrorCalls int32

	tokenServer  *httptest.Server
	v1Server     *httptest.Server
	apiServer    *httptest.Server
	mirrorServer *httptest.Server
}

func newHarness(t *testing.T, userIDs map[string]int, scoresByUser map[int][]osuapi.Score) *testHarness {
	t.Helper()
	h := &testHarness{}

	h.tokenServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&h.tokenCalls, 1)
		json.NewEncoder(w).Encode(osuapi.TokenResponse{
			AccessToken: "harness-token",
			TokenType:   "Bearer",
			ExpiresIn:   86400,
		})
	}))
	t.Cleanup(h.tokenServer.Close)

	h.v1Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("u")
		id, ok := userIDs[username]
		if !ok {
			fmt.Fprint(w, "[]")
			return
		}
		fmt.Fprintf(w, `[{"user_id":"%d","username":"%s"}]`, id, username)
	}))
	t.Cleanup(h.v1Server.Close)

	h.apiServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&h.scoreCalls, 1)
		var userID int
		fmt.Sscanf(r.URL.Path, "/users/%d/scores/recent", &userID)
		json.NewEncoder(w).Encode(scoresByUser[userID])
	}))
	t.Cleanup(h.apiServer.Close)

	h.mirrorServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&h.mirrorCalls, 1)
		fmt.Fprint(w, "PK\x03\x04 fake archive")
	}))
	t.Cleanup(h.mirrorServer.Close)

	return h
}

func (h *testHarness) newScraper(t *testing.T, accounts []config.AccountFilter) *Scraper {
	return h.newScraperInDir(t, accounts, t.TempDir())
}

func (h *testHarness) newScraperInDir(t *testing.T, accounts []config.AccountFilter, outputDir string) *Scraper {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Osu.APIV1Key = "test-v1-key"
	cfg.Osu.ClientID = "1234"
	cfg.Osu.ClientSecret = "hunter2"
	cfg.Output.Directory = outputDir
	cfg.Mirror.BaseURL = h.mirrorServer.URL
	cfg.Download.RequestTimeout = 5 * time.Second
	cfg.Download.DownloadTimeout = 5 * time.Second
	cfg.Accounts = accounts

	s, err := New(cfg)
	require.NoError(t, err)

	s.tokens.SetTokenURL(h.tokenServer.URL)
	s.api.SetBaseURL(h.apiServer.URL)
	s.api.SetV1BaseURL(h.v1Server.URL)

	return s
}

func matchingScore(beatmapsetID int) osuapi.Score {
	return osuapi.Score{
		ID:     int64(beatmapsetID) * 10,
		UserID: 1,
		Beatmap: osuapi.Beatmap{
			ID:               beatmapsetID * 100,
			Mode:             "osu",
			DifficultyRating: 6.2,
			AR:               9.4,
			CS:               4.0,
			Accuracy:         9.0,
			Drain:            5.5,
			TotalLength:      180,
			Version:          "Extra",
		},
		Beatmapset: osuapi.Beatmapset{ID: beatmapsetID, Artist: "a", Title: "t"},
	}
}

func defaultAccount(username string) config.AccountFilter {
	return config.AccountFilter{
		Username:     username,
		GameMode:     "osu",
		StarRating:   config.Range{Min: 5.0, Max: 13.0},
		ApproachRate: config.Range{Min: 1.0, Max: 10.0},
	}
}

func TestRunDownloadsMatchingBeatmapsets(t *testing.T) {
	h := newHarness(t,
		map[string]int{"mrekk": 7562902, "chocomint": 124493},
		map[int][]osuapi.Score{
			7562902: {matchingScore(100), matchingScore(200)},
			124493:  {matchingScore(300)},
		})

	s := h.newScraper(t, []config.AccountFilter{
		defaultAccount("mrekk"),
		defaultAccount("chocomint"),
	})

	require.NoError(t, s.Run())

	assert.Equal(t, int32(3), atomic.LoadInt32(&h.mirrorCalls))
	for _, id := range []int{100, 200, 300} {
		path := filepath.Join(s.store.OutputDir(), fmt.Sprintf("%d.osz", id))
		_, err := os.Stat(path)
		assert.NoError(t, err, "beatmapset %d should be on disk", id)
	}
}

func TestRunSharedBeatmapsetDownloadedOnce(t *testing.T) {
	// Both accounts recently played the same set
	h := newHarness(t,
		map[string]int{"mrekk": 7562902, "chocomint": 124493},
		map[int][]osuapi.Score{
			7562902: {matchingScore(555)},
			124493:  {matchingScore(555)},
		})

	s := h.newScraper(t, []config.AccountFilter{
		defaultAccount("mrekk"),
		defaultAccount("chocomint"),
	})

	require.NoError(t, s.Run())
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.mirrorCalls))
}

func TestRunNoMatchesNoDownloads(t *testing.T) {
	tooEasy := matchingScore(42)
	tooEasy.Beatmap.DifficultyRating = 2.0

	h := newHarness(t,
		map[string]int{"mrekk": 7562902},
		map[int][]osuapi.Score{7562902: {tooEasy}})

	s := h.newScraper(t, []config.AccountFilter{defaultAccount("mrekk")})

	require.NoError(t, s.Run())
	assert.Zero(t, atomic.LoadInt32(&h.mirrorCalls))
}

func TestRunSkipsAlreadyDownloaded(t *testing.T) {
	h := newHarness(t,
		map[string]int{"mrekk": 7562902},
		map[int][]osuapi.Score{7562902: {matchingScore(888)}})

	// Simulate a previous run having fetched the set
	outputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "888.osz"), []byte("old"), 0644))

	s := h.newScraperInDir(t, []config.AccountFilter{defaultAccount("mrekk")}, outputDir)

	require.NoError(t, s.Run())
	assert.Zero(t, atomic.LoadInt32(&h.mirrorCalls))
}

func TestRunUnknownUsernameFailsBeforeScoring(t *testing.T) {
	h := newHarness(t,
		map[string]int{"mrekk": 7562902},
		map[int][]osuapi.Score{7562902: {matchingScore(1)}})

	s := h.newScraper(t, []config.AccountFilter{
		defaultAccount("mrekk"),
		defaultAccount("definitely not a player"),
	})

	err := s.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username resolution failed")
	assert.Zero(t, atomic.LoadInt32(&h.scoreCalls))
	assert.Zero(t, atomic.LoadInt32(&h.mirrorCalls))
}

func TestRunFailedTokenExchangeAbortsScoring(t *testing.T) {
	h := newHarness(t,
		map[string]int{"mrekk": 7562902},
		map[int][]osuapi.Score{7562902: {matchingScore(1)}})

	s := h.newScraper(t, []config.AccountFilter{defaultAccount("mrekk")})

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer rejecting.Close()
	s.tokens.SetTokenURL(rejecting.URL)

	err := s.Run()
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&h.scoreCalls))
	assert.Zero(t, atomic.LoadInt32(&h.mirrorCalls))
}

func TestRunFetchesScoresConcurrently(t *testing.T) {
	h := newHarness(t,
		map[string]int{"mrekk": 7562902, "chocomint": 124493},
		nil)

	s := h.newScraper(t, []config.AccountFilter{
		defaultAccount("mrekk"),
		defaultAccount("chocomint"),
	})

	// A slow scores endpoint that tracks how many fetches overlap
	var inFlight, peak int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(150 * time.Millisecond)
		fmt.Fprint(w, "[]")
	}))
	defer slow.Close()
	s.api.SetBaseURL(slow.URL)

	require.NoError(t, s.Run())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(2),
		"score fetches for different accounts must overlap")
}

func TestRunTokenFetchedOnce(t *testing.T) {
	h := newHarness(t,
		map[string]int{"mrekk": 7562902, "chocomint": 124493},
		map[int][]osuapi.Score{
			7562902: {matchingScore(1)},
			124493:  {matchingScore(2)},
		})

	s := h.newScraper(t, []config.AccountFilter{
		defaultAccount("mrekk"),
		defaultAccount("chocomint"),
	})

	require.NoError(t, s.Run())
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.tokenCalls))
}

func TestShouldDownload(t *testing.T) {
	h := newHarness(t, nil, nil)
	s := h.newScraper(t, []config.AccountFilter{defaultAccount("mrekk")})

	account := defaultAccount("mrekk")
	od := config.Range{Min: 8.0, Max: 10.0}
	length := config.Range{Min: 60, Max: 120}

	tests := []struct {
		name    string
		mutate  func(*osuapi.Score)
		account func() config.AccountFilter
		want    bool
	}{
		{
			name:    "all criteria met",
			mutate:  func(sc *osuapi.Score) {},
			account: func() config.AccountFilter { return account },
			want:    true,
		},
		{
			name:    "wrong game mode",
			mutate:  func(sc *osuapi.Score) { sc.Beatmap.Mode = "mania" },
			account: func() config.AccountFilter { return account },
			want:    false,
		},
		{
			name:    "stars below range",
			mutate:  func(sc *osuapi.Score) { sc.Beatmap.DifficultyRating = 4.9 },
			account: func() config.AccountFilter { return account },
			want:    false,
		},
		{
			name:    "stars at lower bound",
			mutate:  func(sc *osuapi.Score) { sc.Beatmap.DifficultyRating = 5.0 },
			account: func() config.AccountFilter { return account },
			want:    true,
		},
		{
			name:    "approach rate above range",
			mutate:  func(sc *osuapi.Score) { sc.Beatmap.AR = 11.0 },
			account: func() config.AccountFilter { return account },
			want:    false,
		},
		{
			name:   "optional overall difficulty out of range",
			mutate: func(sc *osuapi.Score) { sc.Beatmap.Accuracy = 7.0 },
			account: func() config.AccountFilter {
				a := account
				a.OverallDifficulty = &od
				return a
			},
			want: false,
		},
		{
			name:   "optional song length out of range",
			mutate: func(sc *osuapi.Score) { sc.Beatmap.TotalLength = 400 },
			account: func() config.AccountFilter {
				a := account
				a.SongLength = &length
				return a
			},
			want: false,
		},
		{
			name:   "nil optional ranges are unconstrained",
			mutate: func(sc *osuapi.Score) { sc.Beatmap.Accuracy = 0.1; sc.Beatmap.CS = 10 },
			account: func() config.AccountFilter {
				return account
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := matchingScore(9999)
			tt.mutate(&score)
			assert.Equal(t, tt.want, s.shouldDownload(tt.account(), score))
		})
	}
}

func TestShouldDownloadRejectsClaimedSet(t *testing.T) {
	h := newHarness(t, nil, nil)
	s := h.newScraper(t, []config.AccountFilter{defaultAccount("mrekk")})

	score := matchingScore(777)
	require.True(t, s.shouldDownload(defaultAccount("mrekk"), score))

	s.store.MarkDownloaded(777)
	assert.False(t, s.shouldDownload(defaultAccount("mrekk"), score))
}
