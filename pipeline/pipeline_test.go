package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"costa-catalog/config"
	"costa-catalog/models"
	"costa-catalog/pipeline"
	"costa-catalog/schema"
	"costa-catalog/scraper/feed"
	"costa-catalog/storage"
	"costa-catalog/utils"
)

type listing struct {
	ref, dev, town, zone, kind string
	beds, price                int
}

func kyeroXML(ls ...listing) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><root>`)
	for _, l := range ls {
		fmt.Fprintf(&b, `<property><ref>%s</ref><development>%s</development><developer>Costa Homes</developer>`+
			`<type>%s</type><town>%s</town><location_detail>%s</location_detail><beds>%d</beds><price>%d</price></property>`,
			l.ref, l.dev, l.kind, l.town, l.zone, l.beds, l.price)
	}
	b.WriteString(`</root>`)
	return b.String()
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrency: 4,
		FeedTimeout:    100 * time.Millisecond,
		MaxRetries:     1,
		RetryBaseDelay: 5 * time.Millisecond,
		RunTimeout:     5 * time.Second,
		UserAgent:      "pipeline-test",
	}
}

func sources(urls map[string]string, order ...string) []models.FeedSource {
	out := make([]models.FeedSource, 0, len(order))
	for _, id := range order {
		out = append(out, models.FeedSource{ID: id, URL: urls[id], Profile: schema.MustCompile(schema.Profile{Kind: schema.KindKyero})})
	}
	return out
}

func newRunner(t *testing.T, feeds []models.FeedSource, snapshots storage.SnapshotStore) *pipeline.Runner {
	t.Helper()
	cfg := testConfig()
	logger := utils.NewDiscardLogger()
	return pipeline.New(cfg, feeds, feed.New(cfg, snapshots, logger), logger)
}

func TestBuildSunsetVillasAndFictionalTown(t *testing.T) {
	a := feedServer(t, kyeroXML(
		listing{"A-1", "Sunset Villas", "Orihuela Costa", "La Zenia", "Villa", 3, 310000},
		listing{"A-2", "Sunset Villas", "Orihuela Costa", "La Zenia", "Villa", 2, 280000},
	))
	b := feedServer(t, kyeroXML(
		listing{"B-77", "Sunset Villas", "Orihuela Costa", "La Zenia", "Villa", 3, 295000},
		listing{"B-78", "Sunset Villas", "Orihuela Costa", "La Zenia", "Villa", 4, 420000},
		listing{"F-1", "", "Fictional Town", "", "Villa", 3, 250000},
	))

	feeds := sources(map[string]string{"feed-a": a.URL, "feed-b": b.URL}, "feed-a", "feed-b")
	cat, err := newRunner(t, feeds, nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rep := cat.Report()
	if rep.RawRecords != 5 || rep.Parsed != 5 || rep.Merged != 1 || rep.Units != 4 {
		t.Errorf("report = %+v", rep)
	}
	if cat.Stale() {
		t.Error("catalog from fresh feeds reported stale")
	}

	var threeBed []models.UnifiedProperty
	var fictional *models.UnifiedProperty
	for _, u := range cat.Properties() {
		if u.Development == "Sunset Villas" && u.Bedrooms != nil && *u.Bedrooms == 3 {
			threeBed = append(threeBed, u)
		}
		if u.Town == "Fictional Town" {
			u := u
			fictional = &u
		}
	}
	if len(threeBed) != 1 {
		t.Fatalf("Sunset Villas 3-bed units = %d; want 1", len(threeBed))
	}
	u := threeBed[0]
	if u.Price == nil || *u.Price != 295000 {
		t.Errorf("price = %v; want 295000", u.Price)
	}
	if u.Geo.BeachDistance != models.DistanceWalking || u.Geo.BeachName == nil || *u.Geo.BeachName != "Playa de La Zenia" {
		t.Errorf("geo = %+v; want walking to Playa de La Zenia", u.Geo)
	}

	if fictional == nil {
		t.Fatal("Fictional Town unit missing")
	}
	if fictional.Geo.Region != models.RegionOther {
		t.Errorf("Fictional Town region = %s; want other", fictional.Geo.Region)
	}
	idx := cat.Filters()
	for _, slug := range []string{"costa-blanca-south", "costa-blanca-north"} {
		for _, p := range idx.Properties(slug) {
			if p.GlobalReference == fictional.GlobalReference {
				t.Errorf("Fictional Town unit listed under %s", slug)
			}
		}
	}
	if got := idx.Count("costa-blanca-south"); got != 3 {
		t.Errorf("costa-blanca-south count = %d; want 3", got)
	}

	devs := cat.AllDevelopments()
	if len(devs) != 1 || devs[0].PriceFrom == nil || *devs[0].PriceFrom != 280000 {
		t.Errorf("developments = %+v", devs)
	}
}

func TestBuildOneOfThreeFeedsTimesOut(t *testing.T) {
	one := feedServer(t, kyeroXML(listing{"P-1", "", "Torrevieja", "La Mata", "Apartment", 2, 180000}))
	two := feedServer(t, kyeroXML(listing{"Q-1", "", "Benidorm", "Levante", "Apartment", 1, 210000}))
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	snaps, err := storage.NewFileSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	old := kyeroXML(listing{"S-1", "", "Javea", "Arenal", "Villa", 4, 650000})
	if err := snaps.Save(context.Background(), "slow", []byte(old)); err != nil {
		t.Fatal(err)
	}

	feeds := sources(map[string]string{"one": one.URL, "slow": slow.URL, "two": two.URL}, "one", "slow", "two")
	cat, err := newRunner(t, feeds, snaps).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(cat.Properties()) != 3 {
		t.Fatalf("units = %d; want 3", len(cat.Properties()))
	}
	if !cat.Stale() {
		t.Error("catalog with a snapshot fallback should be stale")
	}
	rep := cat.Report()
	if len(rep.Failures) != 1 || rep.Failures[0].FeedID != "slow" {
		t.Errorf("failures = %+v", rep.Failures)
	}
	if len(rep.StaleFeeds) != 1 || rep.StaleFeeds[0] != "slow" {
		t.Errorf("stale feeds = %v", rep.StaleFeeds)
	}
	for _, u := range cat.Properties() {
		wantStale := u.Town == "Javea"
		if u.Stale != wantStale {
			t.Errorf("%s stale = %v; want %v", u.Town, u.Stale, wantStale)
		}
	}
}

type stubFetcher func(ctx context.Context, feeds []models.FeedSource) []models.FeedResult

func (f stubFetcher) FetchAll(ctx context.Context, feeds []models.FeedSource) []models.FeedResult {
	return f(ctx, feeds)
}

func TestBuildAllFeedsFailed(t *testing.T) {
	fetcher := stubFetcher(func(ctx context.Context, feeds []models.FeedSource) []models.FeedResult {
		out := make([]models.FeedResult, len(feeds))
		for i, f := range feeds {
			out[i] = models.FeedResult{FeedID: f.ID, Failure: &models.FeedFailure{FeedID: f.ID, Reason: "down", Attempts: 3}}
		}
		return out
	})
	feeds := sources(map[string]string{"x": "http://unused", "y": "http://unused"}, "x", "y")
	r := pipeline.New(testConfig(), feeds, fetcher, utils.NewDiscardLogger())

	cat, err := r.Build(context.Background())
	if cat != nil || !errors.Is(err, pipeline.ErrNoData) {
		t.Errorf("Build = %v, %v; want ErrNoData", cat, err)
	}
}

func TestBuildRunTimeout(t *testing.T) {
	fetcher := stubFetcher(func(ctx context.Context, feeds []models.FeedSource) []models.FeedResult {
		<-ctx.Done()
		return make([]models.FeedResult, len(feeds))
	})
	cfg := testConfig()
	cfg.RunTimeout = 20 * time.Millisecond
	feeds := sources(map[string]string{"x": "http://unused"}, "x")
	r := pipeline.New(cfg, feeds, fetcher, utils.NewDiscardLogger())

	cat, err := r.Build(context.Background())
	if cat != nil || !errors.Is(err, pipeline.ErrRunTimeout) {
		t.Errorf("Build = %v, %v; want ErrRunTimeout", cat, err)
	}
}

func TestBuildEveryRecordDroppedFails(t *testing.T) {
	srv := feedServer(t, `<root>
		<property><ref>CASTLE</ref><type>Castle</type><town>Javea</town><price>900000</price></property>
	</root>`)
	feeds := sources(map[string]string{"d": srv.URL}, "d")
	cat, err := newRunner(t, feeds, nil).Build(context.Background())
	if cat != nil || !errors.Is(err, pipeline.ErrEmptyCatalog) {
		t.Errorf("Build = %v, %v; want ErrEmptyCatalog", cat, err)
	}
}

func TestBuildCountsDrops(t *testing.T) {
	srv := feedServer(t, `<root>
		<property><ref>OK-1</ref><type>Bungalow</type><town>Torrevieja</town><price>150000</price></property>
		<property><ref>OK-1</ref><type>Bungalow</type><town>Torrevieja</town><price>150000</price></property>
		<property><ref>NO-TOWN</ref><type>Villa</type><price>300000</price></property>
		<property><ref>CASTLE</ref><type>Castle</type><town>Javea</town><price>900000</price></property>
	</root>`)
	feeds := sources(map[string]string{"d": srv.URL}, "d")
	cat, err := newRunner(t, feeds, nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rep := cat.Report()
	if rep.RawRecords != 4 || rep.Parsed != 1 || rep.Dropped != 3 {
		t.Errorf("report = %+v", rep)
	}
	if rep.DropReasons["duplicate reference"] != 1 || rep.DropReasons["missing town"] != 1 {
		t.Errorf("drop reasons = %v", rep.DropReasons)
	}
}
