package services

import (
	"reflect"
	"testing"

	"costa-catalog/models"
)

func devUnit(ref, dev, builder, town string, price *int, beds int, pt models.PropertyType, images ...string) models.UnifiedProperty {
	return models.UnifiedProperty{
		GlobalReference: ref,
		Listing: models.Listing{
			Development: dev, Builder: builder, Town: town, Zone: "La Zenia",
			Price: price, Bedrooms: models.IntPtr(beds), PropertyType: pt, Images: images,
		},
	}
}

func TestAggregatorDevelopments(t *testing.T) {
	a := NewAggregator(newTestLogger())
	units := []models.UnifiedProperty{
		devUnit("u1", "Sunset Villas", "Costa Homes", "Orihuela Costa", models.IntPtr(310000), 3, models.TypeVilla, "https://x/expensive.jpg"),
		devUnit("u2", "Sunset Villas", "Costa Homes", "Orihuela Costa", models.IntPtr(295000), 2, models.TypeVilla, "https://x/cheap.jpg"),
		devUnit("u3", "Sunset  villas", "Costa Homes", "Orihuela Costa", nil, 4, models.TypeBungalow),
		devUnit("u4", "", "Costa Homes", "Orihuela Costa", models.IntPtr(100000), 1, models.TypeApartment),
	}
	units[2].Stale = true

	devs := a.Developments(units)
	if len(devs) != 1 {
		t.Fatalf("developments: got %d, want 1", len(devs))
	}
	d := devs[0]
	if d.Slug != "sunset-villas" || len(d.Units) != 3 {
		t.Errorf("slug/units = %s/%d", d.Slug, len(d.Units))
	}
	if d.PriceFrom == nil || *d.PriceFrom != 295000 || *d.PriceRange.Max != 310000 {
		t.Errorf("price range = %v-%v", d.PriceFrom, d.PriceRange.Max)
	}
	if *d.BedroomRange.Min != 2 || *d.BedroomRange.Max != 4 {
		t.Errorf("bedroom range = %d-%d", *d.BedroomRange.Min, *d.BedroomRange.Max)
	}
	if d.MainImage != "https://x/cheap.jpg" {
		t.Errorf("main image = %q; want cheapest unit's image", d.MainImage)
	}
	if !reflect.DeepEqual(d.PropertyTypes, []models.PropertyType{models.TypeBungalow, models.TypeVilla}) {
		t.Errorf("property types = %v", d.PropertyTypes)
	}
	if d.Units[2].Price != nil {
		t.Error("on-request unit should sort last")
	}
	if d.Stale {
		t.Error("development with fresh units must not be stale")
	}
	if d.Geo.Region != models.RegionSouth || d.Geo.BeachDistance != models.DistanceWalking {
		t.Errorf("geo = %+v", d.Geo)
	}
}

func TestAggregatorSlugsUnique(t *testing.T) {
	a := NewAggregator(newTestLogger())
	units := []models.UnifiedProperty{
		devUnit("u1", "Mar Azul", "Costa Homes", "Torrevieja", models.IntPtr(1), 1, models.TypeApartment),
		devUnit("u2", "Mar Azul", "Costa Homes", "Benidorm", models.IntPtr(1), 1, models.TypeApartment),
		devUnit("u3", "Mar Azul", "Other Builder", "Benidorm", models.IntPtr(1), 1, models.TypeApartment),
		devUnit("u4", "Mar Azul", "Third", "Benidorm", models.IntPtr(1), 1, models.TypeApartment),
	}
	devs := a.Developments(units)
	if len(devs) != 4 {
		t.Fatalf("developments: got %d, want 4", len(devs))
	}
	seen := make(map[string]bool)
	for _, d := range devs {
		if seen[d.Slug] {
			t.Errorf("duplicate slug %s", d.Slug)
		}
		seen[d.Slug] = true
	}
}

func TestAggregatorBuilders(t *testing.T) {
	a := NewAggregator(newTestLogger())
	units := []models.UnifiedProperty{
		devUnit("u1", "Sunset Villas", "Costa Homes", "Orihuela Costa", models.IntPtr(295000), 3, models.TypeVilla),
		devUnit("u2", "Altea Hills", "COSTA HOMES", "Altea", models.IntPtr(750000), 4, models.TypeVilla),
		devUnit("u3", "Altea Hills", "COSTA HOMES", "Altea", models.IntPtr(690000), 3, models.TypeVilla),
		devUnit("u4", "Solo", "", "Altea", models.IntPtr(200000), 3, models.TypeVilla),
	}
	builders := a.Builders(a.Developments(units))
	if len(builders) != 1 {
		t.Fatalf("builders: got %d, want 1", len(builders))
	}
	b := builders[0]
	if b.DevelopmentCount != 2 || b.TotalUnits != 3 {
		t.Errorf("counts = %d devs / %d units", b.DevelopmentCount, b.TotalUnits)
	}
	if *b.PriceRange.Min != 295000 || *b.PriceRange.Max != 750000 {
		t.Errorf("price range = %d-%d", *b.PriceRange.Min, *b.PriceRange.Max)
	}
	if !reflect.DeepEqual(b.Towns, []string{"Altea", "Orihuela Costa"}) {
		t.Errorf("towns = %v", b.Towns)
	}
	if !reflect.DeepEqual(b.Regions, []models.Region{models.RegionNorth, models.RegionSouth}) {
		t.Errorf("regions = %v", b.Regions)
	}
	if !reflect.DeepEqual(b.Developments, []string{"altea-hills", "sunset-villas"}) {
		t.Errorf("developments = %v", b.Developments)
	}
}
