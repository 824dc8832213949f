// Package pipeline wires the fetch, normalize, classify, merge and aggregate
// stages into one catalog build.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"costa-catalog/catalog"
	"costa-catalog/config"
	"costa-catalog/models"
	"costa-catalog/schema"
	"costa-catalog/services"
	"costa-catalog/utils"
)

var (
	// ErrNoData means every feed failed and nothing could be recovered.
	ErrNoData = errors.New("pipeline: no feed data available")
	// ErrRunTimeout means the build did not finish within RUN_TIMEOUT.
	ErrRunTimeout = errors.New("pipeline: run timed out")
	// ErrEmptyCatalog means feeds were read but no record survived
	// normalization. An empty catalog is never published.
	ErrEmptyCatalog = errors.New("pipeline: no records survived normalization")
)

// Fetcher retrieves every configured feed; feed.Fetcher implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, feeds []models.FeedSource) []models.FeedResult
}

// Runner builds catalogs. It implements catalog.Builder.
type Runner struct {
	cfg        *config.Config
	feeds      []models.FeedSource
	profiles   map[string]*schema.Compiled
	fetcher    Fetcher
	normalizer *services.Normalizer
	classifier *services.Classifier
	merger     *services.Merger
	aggregator *services.Aggregator
	logger     *utils.Logger
	now        func() time.Time
}

var _ catalog.Builder = (*Runner)(nil)

// New creates a Runner over the configured feeds.
func New(cfg *config.Config, feeds []models.FeedSource, fetcher Fetcher, logger *utils.Logger) *Runner {
	profiles := make(map[string]*schema.Compiled, len(feeds))
	for _, f := range feeds {
		profiles[f.ID] = f.Profile
	}
	return &Runner{
		cfg:        cfg,
		feeds:      feeds,
		profiles:   profiles,
		fetcher:    fetcher,
		normalizer: services.NewNormalizer(logger),
		classifier: services.NewClassifier(logger),
		merger:     services.NewMerger(logger),
		aggregator: services.NewAggregator(logger),
		logger:     logger,
		now:        time.Now,
	}
}

// Build runs one full pipeline pass within RUN_TIMEOUT. Only feed fetching
// is parallel; every later stage runs on the calling goroutine.
func (r *Runner) Build(ctx context.Context) (*catalog.Catalog, error) {
	start := r.now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()

	report := models.RunReport{StartedAt: start, Feeds: len(r.feeds)}
	r.logger.Info("[pipeline] Run started: %d feeds", len(r.feeds))

	results := r.fetcher.FetchAll(ctx, r.feeds)
	if err := checkDeadline(ctx, "fetch"); err != nil {
		return nil, err
	}

	allFailed := len(results) > 0
	for _, res := range results {
		report.RawRecords += len(res.Records)
		if res.Failure != nil {
			report.Failures = append(report.Failures, *res.Failure)
		} else {
			allFailed = false
		}
		if res.Stale {
			report.StaleFeeds = append(report.StaleFeeds, res.FeedID)
		}
	}
	sort.Strings(report.StaleFeeds)

	parsed, drops := r.normalizer.NormalizeAll(results, r.profiles)
	report.Parsed = len(parsed)
	report.DropReasons = drops
	for _, n := range drops {
		report.Dropped += n
	}
	if len(parsed) == 0 && (allFailed || len(results) == 0) {
		r.logger.Error("[pipeline] Every feed failed and no snapshot could be used")
		return nil, ErrNoData
	}
	if len(parsed) == 0 {
		r.logger.Error("[pipeline] No records survived normalization (%d dropped: %v)", report.Dropped, drops)
		return nil, fmt.Errorf("%w (%d dropped)", ErrEmptyCatalog, report.Dropped)
	}
	if err := checkDeadline(ctx, "normalize"); err != nil {
		return nil, err
	}

	report.Unclassified = r.classifier.Tag(parsed)

	units := r.merger.Merge(parsed)
	report.Units = len(units)
	report.Merged = len(parsed) - len(units)
	if err := checkDeadline(ctx, "merge"); err != nil {
		return nil, err
	}

	devs := r.aggregator.Developments(units)
	builders := r.aggregator.Builders(devs)
	report.Developments = len(devs)
	report.Builders = len(builders)
	report.Duration = r.now().Sub(start)

	cat := catalog.New(units, devs, builders, report, start)
	idx := cat.Filters()
	if err := checkDeadline(ctx, "aggregate"); err != nil {
		return nil, err
	}

	r.logger.Info("[pipeline] Run finished in %v: %d raw, %d parsed, %d dropped, %d merged, %d units, %d developments, %d builders, %d filters",
		report.Duration.Round(time.Millisecond), report.RawRecords, report.Parsed, report.Dropped,
		report.Merged, report.Units, report.Developments, report.Builders, len(idx.StaticParams()))
	if len(report.StaleFeeds) > 0 {
		r.logger.Warn("[pipeline] Catalog includes stale snapshots for: %v", report.StaleFeeds)
	}
	return cat, nil
}

// checkDeadline turns an expired run context into ErrRunTimeout so a
// partial catalog is never published.
func checkDeadline(ctx context.Context, stage string) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w during %s", ErrRunTimeout, stage)
	default:
		return fmt.Errorf("pipeline: %s: %w", stage, err)
	}
}
