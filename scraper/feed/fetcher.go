// Package feed downloads the configured XML feeds in parallel and falls back
// to the last good snapshot of a feed when it cannot be fetched.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"costa-catalog/config"
	"costa-catalog/models"
	"costa-catalog/schema"
	"costa-catalog/storage"
	"costa-catalog/utils"
)

const (
	maxFeedBytes        = 64 << 20
	snapshotLoadTimeout = 5 * time.Second
)

// Fetcher retrieves feeds and keeps their snapshots current.
type Fetcher struct {
	cfg       *config.Config
	logger    *utils.Logger
	client    *http.Client
	snapshots storage.SnapshotStore
	retry     *utils.RetryConfig
	now       func() time.Time
}

// New creates a Fetcher. snapshots may be nil, in which case failed feeds
// simply yield no records.
func New(cfg *config.Config, snapshots storage.SnapshotStore, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		cfg:       cfg,
		logger:    logger,
		client:    &http.Client{},
		snapshots: snapshots,
		retry: &utils.RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
			Logger:     logger,
		},
		now: time.Now,
	}
}

// FetchAll fetches every feed with at most cfg.MaxConcurrency in flight and
// returns one result per feed, in input order. It never fails as a whole:
// per-feed problems are reported through FeedResult.Failure.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []models.FeedSource) []models.FeedResult {
	results := make([]models.FeedResult, len(feeds))
	if len(feeds) == 0 {
		return results
	}

	pool := utils.NewWorkerPool(utils.PoolSize(len(feeds), f.cfg.MaxConcurrency), f.cfg.RateLimitMs)
	f.logger.Info("[feed] Fetching %d feeds with %d workers", len(feeds), pool.Size())

	for i, src := range feeds {
		pool.Submit(ctx, func(ctx context.Context) {
			results[i] = f.fetchOne(ctx, src)
		})
	}
	pool.Wait()
	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, src models.FeedSource) models.FeedResult {
	res := models.FeedResult{FeedID: src.ID}
	start := f.now()

	var payload []byte
	var nodes []*xmlquery.Node
	attempts, err := f.retry.Do(ctx, "feed "+src.ID, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, f.cfg.FeedTimeout)
		defer cancel()

		body, err := f.download(actx, src.URL)
		if err != nil {
			return err
		}
		recs, err := parseRecords(body, src.Profile)
		if err != nil {
			return err
		}
		payload, nodes = body, recs
		return nil
	})

	if err == nil {
		res.FetchedAt = start
		res.Records = toRecords(src.ID, nodes, start, false)
		f.logger.Info("[feed] %s: %d records (%d attempt(s), %v)", src.ID, len(nodes), attempts, time.Since(start).Round(time.Millisecond))
		f.saveSnapshot(ctx, src.ID, payload)
		return res
	}

	res.Failure = &models.FeedFailure{FeedID: src.ID, Reason: err.Error(), Attempts: attempts}
	f.logger.Error("[feed] %s failed: %v", src.ID, err)
	f.fallback(ctx, src, &res)
	return res
}

// fallback substitutes the last good snapshot of src. It runs even when the
// run context is already cancelled, with its own short deadline.
func (f *Fetcher) fallback(ctx context.Context, src models.FeedSource, res *models.FeedResult) {
	if f.snapshots == nil {
		return
	}
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotLoadTimeout)
	defer cancel()

	snap, err := f.snapshots.Load(lctx, src.ID)
	if errors.Is(err, storage.ErrNoSnapshot) {
		f.logger.Warn("[feed] %s: no snapshot to fall back to, feed contributes nothing", src.ID)
		return
	}
	if err != nil {
		f.logger.Error("[feed] %s: load snapshot: %v", src.ID, err)
		return
	}

	nodes, err := parseRecords(snap.Payload, src.Profile)
	if err != nil {
		f.logger.Error("[feed] %s: snapshot from %s is unusable: %v", src.ID, snap.SavedAt.Format(time.RFC3339), err)
		return
	}
	res.Stale = true
	res.FetchedAt = snap.SavedAt
	res.Records = toRecords(src.ID, nodes, snap.SavedAt, true)
	f.logger.Warn("[feed] %s: serving %d stale records from snapshot of %s",
		src.ID, len(nodes), snap.SavedAt.Format(time.RFC3339))
}

func (f *Fetcher) saveSnapshot(ctx context.Context, feedID string, payload []byte) {
	if f.snapshots == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotLoadTimeout)
	defer cancel()
	if err := f.snapshots.Save(sctx, feedID, payload); err != nil {
		f.logger.Warn("[feed] %s: save snapshot: %v", feedID, err)
	}
}

// download reads an http(s) URL, a file:// URL or a bare local path.
func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		path := strings.TrimPrefix(rawURL, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("feed exceeds %d bytes", maxFeedBytes)
	}
	return body, nil
}

// parseRecords parses payload and extracts the profile's listing nodes. A
// document with no listings is treated as malformed.
func parseRecords(payload []byte, profile *schema.Compiled) ([]*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("malformed XML: %w", err)
	}
	nodes := profile.Records(doc)
	if len(nodes) == 0 {
		return nil, errors.New("malformed feed: no listing records")
	}
	return nodes, nil
}

func toRecords(feedID string, nodes []*xmlquery.Node, fetchedAt time.Time, stale bool) []models.RawFeedRecord {
	out := make([]models.RawFeedRecord, len(nodes))
	for i, n := range nodes {
		out[i] = models.RawFeedRecord{FeedID: feedID, Node: n, FetchedAt: fetchedAt, Stale: stale}
	}
	return out
}
