package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"costa-catalog/catalog"
	"costa-catalog/models"
	"costa-catalog/services"
	"costa-catalog/utils"
)

func testCatalog() *catalog.Catalog {
	zenia := "Playa de La Zenia"
	units := []models.UnifiedProperty{
		{
			GlobalReference: "0b6f5a2e-0000-5000-8000-000000000001",
			Listing: models.Listing{
				Title: "Villa, \"Sunset\"", PropertyType: models.TypeVilla, Development: "Sunset Villas",
				Builder: "Costa Homes", Town: "Orihuela Costa", Zone: "La Zenia", Price: models.IntPtr(295000),
				Bedrooms: models.IntPtr(3), Features: []models.Feature{models.FeaturePool},
				Images: []string{"https://img.example.com/a.jpg", "https://img.example.com/b.jpg"},
			},
			Geo:         models.GeoTag{BeachName: &zenia, BeachDistance: models.DistanceWalking, Region: models.RegionSouth},
			Sources:     []models.SourceRef{{FeedID: "feed-a", Reference: "A-1"}, {FeedID: "feed-b", Reference: "B-77"}},
			LastFetched: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
		},
		{
			GlobalReference: "0b6f5a2e-0000-5000-8000-000000000002",
			Listing:         models.Listing{Title: "Plot in Javea", PropertyType: models.TypePlot, Town: "Javea"},
			Geo:             models.GeoTag{BeachDistance: models.DistanceNone, Region: models.RegionNorth},
			Sources:         []models.SourceRef{{FeedID: "feed-a", Reference: "P-9"}},
		},
	}
	agg := services.NewAggregator(utils.NewDiscardLogger())
	devs := agg.Developments(units)
	return catalog.New(units, devs, agg.Builders(devs), models.RunReport{Feeds: 2}, time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC))
}

func TestFileSnapshotStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileSnapshotStore(filepath.Join(t.TempDir(), "snapshots"))
	if err != nil {
		t.Fatalf("NewFileSnapshotStore: %v", err)
	}

	if _, err := s.Load(ctx, "feed-a"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Load before Save: err = %v; want ErrNoSnapshot", err)
	}
	if err := s.Save(ctx, "feed-a", []byte("<root>v1</root>")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "feed-a", []byte("<root>v2</root>")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap, err := s.Load(ctx, "feed-a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(snap.Payload) != "<root>v2</root>" || snap.FeedID != "feed-a" || snap.SavedAt.IsZero() {
		t.Errorf("snapshot = %+v", snap)
	}

	entries, _ := os.ReadDir(s.dir)
	if len(entries) != 1 {
		t.Errorf("expected only the snapshot file, found %d entries", len(entries))
	}
}

func TestFileSnapshotStoreSanitisesFeedID(t *testing.T) {
	s, _ := NewFileSnapshotStore(t.TempDir())
	if got := filepath.Base(s.path("../../etc/passwd")); strings.Contains(got, "/") || !strings.HasSuffix(got, ".xml") {
		t.Errorf("unsafe path %q", got)
	}
	if filepath.Dir(s.path("../x")) != s.dir {
		t.Error("snapshot escaped its directory")
	}
}

func TestJSONWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "catalog.json")
	cat := testCatalog()

	w := NewJSONWriter(path)
	if err := w.Write(context.Background(), cat); err != nil {
		t.Fatalf("Write: %v", err)
	}
	back, err := ReadCatalogJSON(path)
	if err != nil {
		t.Fatalf("ReadCatalogJSON: %v", err)
	}
	if len(back.Properties()) != 2 || len(back.AllDevelopments()) != 1 || len(back.AllBuilders()) != 1 {
		t.Errorf("round trip lost data: %d/%d/%d", len(back.Properties()), len(back.AllDevelopments()), len(back.AllBuilders()))
	}
	if !back.GeneratedAt().Equal(cat.GeneratedAt()) {
		t.Errorf("generatedAt = %v", back.GeneratedAt())
	}
	if p := back.Properties()[0]; p.Geo.BeachName == nil || *p.Geo.BeachName != "Playa de La Zenia" {
		t.Errorf("geo lost: %+v", p.Geo)
	}
}

func TestReadCatalogJSONMissing(t *testing.T) {
	_, err := ReadCatalogJSON(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v; want fs.ErrNotExist", err)
	}
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.Write(context.Background(), testCatalog()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows: got %d, want header + 2", len(records))
	}
	row := records[1]
	col := func(name string) string {
		for i, h := range csvHeader {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %s", name)
		return ""
	}
	if col("title") != "Villa, \"Sunset\"" || col("price") != "295000" || col("beach") != "Playa de La Zenia" {
		t.Errorf("row = %v", row)
	}
	if col("sources") != "feed-a:A-1|feed-b:B-77" || col("bathrooms") != "" {
		t.Errorf("sources/bathrooms = %q/%q", col("sources"), col("bathrooms"))
	}
}

func TestPostgresRows(t *testing.T) {
	cat := testCatalog()
	props := propertyRows(cat.Properties())
	if len(props) != 2 {
		t.Fatalf("property rows = %d", len(props))
	}
	if props[0].Price == nil || *props[0].Price != 295000 || props[0].Region != "south" {
		t.Errorf("row 0 = %+v", props[0])
	}
	if props[1].Price != nil || props[1].BeachName != nil || props[1].BeachDistance != "none" {
		t.Errorf("row 1 nullables = %+v", props[1])
	}
	if len(props[0].Sources) != 2 || props[0].Features[0] != "pool" {
		t.Errorf("arrays = %v %v", props[0].Sources, props[0].Features)
	}

	devs := developmentRows(cat.AllDevelopments())
	if len(devs) != 1 || devs[0].Units != 1 || *devs[0].PriceFrom != 295000 {
		t.Errorf("development rows = %+v", devs)
	}
	builders := builderRows(cat.AllBuilders())
	if len(builders) != 1 || builders[0].Developments[0] != "sunset-villas" {
		t.Errorf("builder rows = %+v", builders)
	}
}

// TestPostgresWriterIntegration needs a scratch database in DATABASE_URL.
func TestPostgresWriterIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	pw, err := NewPostgresWriter(dsn)
	if err != nil {
		t.Fatalf("NewPostgresWriter: %v", err)
	}
	defer pw.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := pw.Write(ctx, testCatalog()); err != nil {
			t.Fatalf("Write #%d: %v", i+1, err)
		}
	}
	n, err := pw.PropertyCount(ctx)
	if err != nil || n != 2 {
		t.Errorf("PropertyCount = %d, %v; want 2 after two writes", n, err)
	}
}

// TestRedisSnapshotStoreIntegration needs a scratch Redis in REDIS_URL.
func TestRedisSnapshotStoreIntegration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer rdb.Close()

	prefix := "test:snapshot:" + t.Name() + ":"
	s := NewRedisSnapshotStore(rdb, prefix, time.Minute)
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Load missing: err = %v", err)
	}
	if err := s.Save(ctx, "feed-a", []byte("<root/>")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap, err := s.Load(ctx, "feed-a")
	if err != nil || string(snap.Payload) != "<root/>" || snap.SavedAt.IsZero() {
		t.Errorf("Load = %+v, %v", snap, err)
	}
}
