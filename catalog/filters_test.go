package catalog

import (
	"testing"

	"costa-catalog/models"
)

func refsOf(units []models.UnifiedProperty) map[string]bool {
	out := make(map[string]bool, len(units))
	for _, u := range units {
		out[u.GlobalReference] = true
	}
	return out
}

func TestFictionalTownExcludedFromRegions(t *testing.T) {
	idx := sampleCatalog(models.RunReport{}).Filters()
	for _, slug := range []string{"costa-blanca-south", "costa-blanca-north"} {
		if refsOf(idx.Properties(slug))["u09"] {
			t.Errorf("Fictional Town unit listed under %s", slug)
		}
	}
	if !refsOf(idx.Properties("villas"))["u09"] {
		t.Error("Fictional Town villa should still match the region-less villas filter")
	}
	if got := idx.Count("costa-blanca-south"); got != 4 {
		t.Errorf("costa-blanca-south: got %d, want 4", got)
	}
}

func TestMatchesFilter(t *testing.T) {
	p := models.IntPtr
	villa := unit("v", models.TypeVilla, "Jávea", "Arenal", p(800000), p(3), models.FeaturePool)
	onRequest := unit("r", models.TypeVilla, "Javea", "", nil, p(3))

	tests := []struct {
		name string
		u    models.UnifiedProperty
		f    models.FilterDefinition
		want bool
	}{
		{"empty filter matches all", villa, models.FilterDefinition{}, true},
		{"type", villa, models.FilterDefinition{Type: typePtr(models.TypeApartment)}, false},
		{"town is accent-insensitive", villa, models.FilterDefinition{Town: "javea"}, true},
		{"bedrooms exact", villa, models.FilterDefinition{Bedrooms: p(2)}, false},
		{"min price", villa, models.FilterDefinition{MinPrice: p(750000)}, true},
		{"max price", villa, models.FilterDefinition{MaxPrice: p(750000)}, false},
		{"nil price fails min", onRequest, models.FilterDefinition{MinPrice: p(1)}, false},
		{"nil price fails max", onRequest, models.FilterDefinition{MaxPrice: p(10000000)}, false},
		{"nil price passes unbounded", onRequest, models.FilterDefinition{Type: typePtr(models.TypeVilla)}, true},
		{"region", villa, models.FilterDefinition{Region: models.RegionNorth}, true},
		{"wrong region", villa, models.FilterDefinition{Region: models.RegionSouth}, false},
		{"feature", villa, models.FilterDefinition{Features: []models.Feature{models.FeaturePool}}, true},
		{"all features required", villa, models.FilterDefinition{Features: []models.Feature{models.FeaturePool, models.FeatureGolf}}, false},
		{"near beach from geo", villa, models.FilterDefinition{Features: []models.Feature{models.FeatureNearBeach}}, true},
		{"no beach", onRequest, models.FilterDefinition{Features: []models.Feature{models.FeatureNearBeach}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesFilter(tt.u, tt.f); got != tt.want {
				t.Errorf("MatchesFilter = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestFilterMonotonicity(t *testing.T) {
	units := sampleUnits()
	p := models.IntPtr
	base := models.FilterDefinition{}
	narrowing := []func(f models.FilterDefinition) models.FilterDefinition{
		func(f models.FilterDefinition) models.FilterDefinition { f.Type = typePtr(models.TypeVilla); return f },
		func(f models.FilterDefinition) models.FilterDefinition { f.Region = models.RegionSouth; return f },
		func(f models.FilterDefinition) models.FilterDefinition { f.MinPrice = p(300000); return f },
		func(f models.FilterDefinition) models.FilterDefinition { f.Bedrooms = p(4); return f },
		func(f models.FilterDefinition) models.FilterDefinition {
			f.Features = append(f.Features, models.FeatureGolf)
			return f
		},
	}

	count := func(f models.FilterDefinition) int {
		n := 0
		for _, u := range units {
			if MatchesFilter(u, f) {
				n++
			}
		}
		return n
	}

	f := base
	prev := count(f)
	for i, narrow := range narrowing {
		f = narrow(f)
		n := count(f)
		if n > prev {
			t.Errorf("step %d: adding a predicate grew results from %d to %d", i, prev, n)
		}
		prev = n
	}
	if prev != 1 {
		t.Errorf("fully narrowed filter: got %d, want 1", prev)
	}
}

func TestDefaultFiltersHaveCopy(t *testing.T) {
	for slug, def := range DefaultFilters() {
		if def.Slug != slug || def.Title == "" || def.Description == "" {
			t.Errorf("filter %q: slug %q title %q description %q", slug, def.Slug, def.Title, def.Description)
		}
	}
}

func TestBuildFilterIndexIsTotal(t *testing.T) {
	defs := DefaultFilters()
	defs["nothing-matches"] = models.FilterDefinition{Slug: "nothing-matches", Town: "Atlantis"}
	idx := BuildFilterIndex(sampleCatalog(models.RunReport{}), defs)

	slugs := idx.StaticParams()
	if len(slugs) != len(defs) {
		t.Fatalf("StaticParams: got %d slugs, want %d", len(slugs), len(defs))
	}
	for i := 1; i < len(slugs); i++ {
		if slugs[i-1] >= slugs[i] {
			t.Errorf("StaticParams not sorted at %d", i)
		}
	}
	if props := idx.Properties("nothing-matches"); props == nil || len(props) != 0 {
		t.Errorf("empty filter should give an empty, non-nil result, got %v", props)
	}
	devs := idx.Developments("villas-with-pool")
	if len(devs) != 1 || devs[0].Slug != "sunset-villas" {
		t.Errorf("villas-with-pool developments = %v", devs)
	}
}

func TestRelatedFilters(t *testing.T) {
	idx := sampleCatalog(models.RunReport{}).Filters()
	related := idx.RelatedFilters("villas-orihuela-costa", 10)
	seen := make(map[string]bool)
	for _, slug := range related {
		seen[slug] = true
		if idx.Count(slug) == 0 {
			t.Errorf("related filter %s is empty", slug)
		}
	}
	if seen["villas-orihuela-costa"] {
		t.Error("filter related to itself")
	}
	if !seen["villas"] || !seen["3-bedroom-villas"] {
		t.Errorf("related = %v; want villas and 3-bedroom-villas", related)
	}
	if got := idx.RelatedFilters("villas-orihuela-costa", 1); len(got) != 1 {
		t.Errorf("limit not applied: %v", got)
	}
	if got := idx.RelatedFilters("no-such-filter", 5); got != nil {
		t.Errorf("unknown slug: %v", got)
	}
}
