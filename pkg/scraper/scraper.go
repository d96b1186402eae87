// Package scraper orchestrates the whole fetch cycle: username resolution,
// recent-score retrieval, filtering and beatmapset downloads.
package scraper

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"osugrab/internal/downloader"
	"osugrab/pkg/config"
	"osugrab/pkg/logger"
	"osugrab/pkg/mirror"
	"osugrab/pkg/osuapi"
	"osugrab/pkg/ratelimit"
	"osugrab/pkg/storage"
)

// Scraper runs one fetch cycle over every configured account. All accounts
// share one token source, one rate-limit window and one deduplication set;
// downloads are batched per account and awaited before the account is done.
type Scraper struct {
	cfg    *config.Config
	api    *osuapi.Client
	tokens *osuapi.TokenSource
	mirror *mirror.Client
	store  *storage.Manager
	logger logger.Logger
}

// New creates a scraper from the given configuration. The output directory
// is created and scanned immediately, so construction fails early when the
// directory is unusable.
func New(cfg *config.Config) (*Scraper, error) {
	log := logger.GetLogger()

	store, err := storage.NewManager(cfg.Output.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	tokens := osuapi.NewTokenSource(cfg.Osu.ClientID, cfg.Osu.ClientSecret, cfg.Download.RequestTimeout, log)
	window := ratelimit.NewWindow(cfg.RateLimit.RequestsPerPeriod, cfg.RateLimit.Period)
	api := osuapi.NewClient(tokens, window, cfg.Osu.APIV1Key, cfg.Download.RequestTimeout, log)
	mirrorClient := mirror.NewClient(cfg.Mirror.BaseURL, cfg.Download.DownloadTimeout, log)

	return &Scraper{
		cfg:    cfg,
		api:    api,
		tokens: tokens,
		mirror: mirrorClient,
		store:  store,
		logger: log,
	}, nil
}

// API returns the underlying osu! API client
func (s *Scraper) API() *osuapi.Client {
	return s.api
}

// Tokens returns the shared token source
func (s *Scraper) Tokens() *osuapi.TokenSource {
	return s.tokens
}

// Run executes one fetch cycle. Usernames are resolved first, concurrently
// and to completion, so a bad account name fails the run before any scoring
// traffic is spent. All accounts are then processed concurrently: score
// fetches and downloads for different accounts interleave freely, sharing
// the token source, the rate-limit window and the deduplication set. One
// account's failure does not stop the others; the joined errors are
// returned after every account has finished.
func (s *Scraper) Run() error {
	userIDs, err := s.resolveAccounts()
	if err != nil {
		return err
	}

	perAccount := make([]error, len(s.cfg.Accounts))
	var group errgroup.Group
	for i, account := range s.cfg.Accounts {
		i, account := i, account
		group.Go(func() error {
			if err := s.processAccount(account, userIDs[account.Username]); err != nil {
				s.logger.ErrorWithFields("account processing failed", map[string]interface{}{
					"username": account.Username,
					"error":    err.Error(),
				})
				perAccount[i] = fmt.Errorf("account %q: %w", account.Username, err)
			}
			return nil
		})
	}
	_ = group.Wait()

	var accountErrs []error
	for _, err := range perAccount {
		if err != nil {
			accountErrs = append(accountErrs, err)
		}
	}

	s.logger.InfoWithFields("fetch cycle finished", map[string]interface{}{
		"accounts":   len(s.cfg.Accounts),
		"beatmapset": s.store.DownloadedCount(),
		"failed":     len(accountErrs),
	})

	if len(accountErrs) > 0 {
		return errors.Join(accountErrs...)
	}
	return nil
}

// resolveAccounts maps every configured username to its numeric id. All
// lookups run concurrently and the whole phase completes before any result
// is used; a single unknown username fails the run.
func (s *Scraper) resolveAccounts() (map[string]int, error) {
	ids := make([]int, len(s.cfg.Accounts))

	var group errgroup.Group
	for i, account := range s.cfg.Accounts {
		i, account := i, account
		group.Go(func() error {
			id, err := s.api.ResolveUserID(account.Username)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("username resolution failed: %w", err)
	}

	userIDs := make(map[string]int, len(s.cfg.Accounts))
	for i, account := range s.cfg.Accounts {
		userIDs[account.Username] = ids[i]
		s.logger.DebugWithFields("account resolved", map[string]interface{}{
			"username": account.Username,
			"user_id":  ids[i],
		})
	}

	return userIDs, nil
}

// processAccount fetches one account's recent scores and downloads every
// matching beatmapset that has not been claimed yet.
func (s *Scraper) processAccount(account config.AccountFilter, userID int) error {
	scores, err := s.api.GetRecentScores(userID, s.cfg.Download.IncludeFails,
		s.cfg.Download.ScoreLimit, s.cfg.Download.ScoreOffset)
	if err != nil {
		return err
	}

	batch := downloader.NewBatch(s.mirror, s.store, s.cfg.Download.ConcurrentDownloads, s.logger)
	for _, score := range scores {
		if !s.shouldDownload(account, score) {
			continue
		}
		// Claim before dispatch so a set shared between accounts is
		// downloaded exactly once
		if !s.store.TryMark(score.Beatmapset.ID) {
			s.logger.DebugWithFields("beatmapset already claimed", map[string]interface{}{
				"beatmapset_id": score.Beatmapset.ID,
				"username":      account.Username,
			})
			continue
		}
		batch.Add(score.Beatmapset.ID, account.Username)
	}

	s.logger.InfoWithFields("account scores processed", map[string]interface{}{
		"username":   account.Username,
		"scores":     len(scores),
		"dispatched": batch.Queued(),
	})

	return batch.Wait()
}

// shouldDownload applies an account's filter criteria to one recent play.
// Game mode, star rating and approach rate are always checked; the optional
// ranges only when configured.
func (s *Scraper) shouldDownload(account config.AccountFilter, score osuapi.Score) bool {
	beatmap := score.Beatmap

	if beatmap.Mode != account.GameMode {
		return false
	}
	if !account.StarRating.Contains(beatmap.DifficultyRating) {
		return false
	}
	if !account.ApproachRate.Contains(beatmap.AR) {
		return false
	}

	if account.OverallDifficulty != nil && !account.OverallDifficulty.Contains(beatmap.Accuracy) {
		return false
	}
	if account.CircleSize != nil && !account.CircleSize.Contains(beatmap.CS) {
		return false
	}
	if account.HealthPoints != nil && !account.HealthPoints.Contains(beatmap.Drain) {
		return false
	}
	if account.SongLength != nil && !account.SongLength.Contains(float64(beatmap.TotalLength)) {
		return false
	}

	return !s.store.IsDownloaded(score.Beatmapset.ID)
}
