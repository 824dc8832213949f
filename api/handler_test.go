package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"costa-catalog/catalog"
	"costa-catalog/models"
	"costa-catalog/services"
	"costa-catalog/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBuilder struct {
	cat *catalog.Catalog
	err error
}

func (b *fakeBuilder) Build(ctx context.Context) (*catalog.Catalog, error) {
	return b.cat, b.err
}

func unit(ref string, t models.PropertyType, town, dev string, price *int) models.UnifiedProperty {
	u := models.UnifiedProperty{GlobalReference: ref}
	u.PropertyType, u.Town, u.Development, u.Price = t, town, dev, price
	u.Builder = "Costa Homes"
	u.Geo = services.Classify(town, "")
	return u
}

func testCatalog() *catalog.Catalog {
	p := models.IntPtr
	units := []models.UnifiedProperty{
		unit("u1", models.TypeVilla, "Orihuela Costa", "Sunset Villas", p(295000)),
		unit("u2", models.TypeVilla, "Orihuela Costa", "Sunset Villas", p(420000)),
		unit("u3", models.TypePlot, "Javea", "", p(450000)),
		unit("u4", models.TypePlot, "Finestrat", "", p(150000)),
		unit("u5", models.TypeApartment, "Torrevieja", "", p(149000)),
	}
	agg := services.NewAggregator(utils.NewDiscardLogger())
	devs := agg.Developments(units)
	return catalog.New(units, devs, agg.Builders(devs), models.RunReport{Units: len(units)}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
}

func newTestRouter(b *fakeBuilder) (*gin.Engine, *catalog.Store) {
	logger := utils.NewDiscardLogger()
	store := catalog.NewStore(b, logger)
	return NewRouter(NewHandler(store, logger), nil), store
}

func do(t *testing.T, r http.Handler, method, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, body
}

func TestRoutesBeforeLoad(t *testing.T) {
	r, _ := newTestRouter(&fakeBuilder{})
	for _, path := range []string{"/api/v1/developments", "/api/v1/stats", "/api/v1/land-plots", "/api/v1/filters"} {
		if code, _ := do(t, r, http.MethodGet, path); code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d; want 503", path, code)
		}
	}
	code, body := do(t, r, http.MethodGet, "/health")
	if code != http.StatusOK || body["loaded"] != false {
		t.Errorf("health = %d %v", code, body)
	}
	if code, _ := do(t, r, http.MethodGet, "/api/v1/beach-zones"); code != http.StatusOK {
		t.Errorf("beach-zones should not need a catalog, got %d", code)
	}
}

func TestReadRoutes(t *testing.T) {
	r, store := newTestRouter(&fakeBuilder{cat: testCatalog()})
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path  string
		code  int
		key   string
		count float64
	}{
		{"/api/v1/developments", 200, "count", 1},
		{"/api/v1/builders", 200, "count", 1},
		{"/api/v1/land-plots?minPrice=200000", 200, "count", 1},
		{"/api/v1/land-plots", 200, "count", 2},
		{"/api/v1/listings", 200, "count", 3},
		{"/api/v1/properties?limit=2&offset=4", 200, "total", 5},
		{"/api/v1/filters/villas", 200, "count", 2},
	}
	for _, tt := range tests {
		code, body := do(t, r, http.MethodGet, tt.path)
		if code != tt.code {
			t.Errorf("GET %s = %d; want %d", tt.path, code, tt.code)
			continue
		}
		if body[tt.key] != tt.count {
			t.Errorf("GET %s %s = %v; want %v", tt.path, tt.key, body[tt.key], tt.count)
		}
		if body["stale"] != false {
			t.Errorf("GET %s stale = %v; want false", tt.path, body["stale"])
		}
	}

	_, body := do(t, r, http.MethodGet, "/api/v1/properties?limit=2&offset=4")
	if props, _ := body["properties"].([]any); len(props) != 1 {
		t.Errorf("page = %d properties; want 1", len(props))
	}

	_, body = do(t, r, http.MethodGet, "/api/v1/listings")
	props, _ := body["properties"].([]any)
	for _, p := range props {
		if dev, _ := p.(map[string]any)["development"].(string); dev != "" {
			t.Errorf("listings should only carry units without a development, got %q", dev)
		}
	}

	_, body = do(t, r, http.MethodGet, "/api/v1/stats")
	stats, _ := body["stats"].(map[string]any)
	report, _ := body["report"].(map[string]any)
	if stats["totalUnits"] != float64(5) || stats["totalDevelopments"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}
	if report == nil {
		t.Errorf("stats response has no report: %v", body)
	}

	_, body = do(t, r, http.MethodGet, "/api/v1/filters")
	filters, _ := body["filters"].([]any)
	for _, f := range filters {
		if d, _ := f.(map[string]any)["description"].(string); d == "" {
			t.Errorf("filter summary without description: %v", f)
		}
	}
}

func TestLookupRoutes(t *testing.T) {
	r, store := newTestRouter(&fakeBuilder{cat: testCatalog()})
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/developments/sunset-villas", 200},
		{"/api/v1/developments/nope", 404},
		{"/api/v1/builders/costa-homes", 200},
		{"/api/v1/builders/nope", 404},
		{"/api/v1/filters/nope", 404},
		{"/api/v1/land-plots?minPrice=cheap", 400},
		{"/api/v1/properties?limit=x", 400},
	}
	for _, tt := range tests {
		if code, _ := do(t, r, http.MethodGet, tt.path); code != tt.code {
			t.Errorf("GET %s = %d; want %d", tt.path, code, tt.code)
		}
	}
}

func TestRefreshAndInvalidate(t *testing.T) {
	b := &fakeBuilder{cat: testCatalog()}
	r, store := newTestRouter(b)

	code, body := do(t, r, http.MethodPost, "/api/v1/catalog/refresh")
	if code != http.StatusOK || body["refreshed"] != true {
		t.Fatalf("refresh = %d %v", code, body)
	}

	b.err = errors.New("feeds down")
	code, body = do(t, r, http.MethodPost, "/api/v1/catalog/refresh")
	if code != http.StatusOK || body["refreshed"] != false || body["stale"] != true {
		t.Errorf("failed refresh with previous catalog = %d %v", code, body)
	}
	if _, body := do(t, r, http.MethodGet, "/api/v1/developments"); body["stale"] != true {
		t.Errorf("reads after failed refresh should be stale: %v", body)
	}

	if code, _ := do(t, r, http.MethodPost, "/api/v1/catalog/invalidate"); code != http.StatusOK {
		t.Errorf("invalidate = %d", code)
	}
	if _, err := store.Current(); !errors.Is(err, catalog.ErrNotLoaded) {
		t.Errorf("after invalidate err = %v", err)
	}
	if code, _ := do(t, r, http.MethodPost, "/api/v1/catalog/refresh"); code != http.StatusBadGateway {
		t.Errorf("failed refresh without catalog = %d; want 502", code)
	}
}

func TestCORSHeaders(t *testing.T) {
	logger := utils.NewDiscardLogger()
	store := catalog.NewStore(&fakeBuilder{}, logger)
	r := NewRouter(NewHandler(store, logger), []string{"https://costa.example"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://costa.example")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://costa.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
