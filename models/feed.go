package models

import (
	"time"

	"github.com/antchfx/xmlquery"

	"costa-catalog/schema"
)

// FeedSource is one configured upstream feed and its compiled schema profile.
type FeedSource struct {
	ID      string
	URL     string
	Profile *schema.Compiled
}

// RawFeedRecord is one listing node as received from a feed. It only lives
// between fetching and normalization.
type RawFeedRecord struct {
	FeedID    string
	Node      *xmlquery.Node
	FetchedAt time.Time
	Stale     bool
}

// FeedFailure records why a feed produced no fresh records in a run.
type FeedFailure struct {
	FeedID   string `json:"feedId"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// FeedResult is the fetcher's outcome for one feed. Records may be non-empty
// alongside a Failure when a stale snapshot was substituted.
type FeedResult struct {
	FeedID    string
	Records   []RawFeedRecord
	Stale     bool
	Failure   *FeedFailure
	FetchedAt time.Time
}

// RunReport holds the counters surfaced for one pipeline run.
type RunReport struct {
	StartedAt    time.Time      `json:"startedAt"`
	Duration     time.Duration  `json:"duration"`
	Feeds        int            `json:"feeds"`
	RawRecords   int            `json:"rawRecords"`
	Parsed       int            `json:"parsed"`
	Dropped      int            `json:"dropped"`
	Unclassified int            `json:"unclassified"`
	Merged       int            `json:"merged"`
	Units        int            `json:"units"`
	Developments int            `json:"developments"`
	Builders     int            `json:"builders"`
	Failures     []FeedFailure  `json:"failures,omitempty"`
	StaleFeeds   []string       `json:"staleFeeds,omitempty"`
	DropReasons  map[string]int `json:"dropReasons,omitempty"`
}
