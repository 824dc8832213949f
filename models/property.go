package models

import (
	"fmt"
	"time"
)

// PropertyType is the fixed set of listing kinds every feed type string is
// classified into.
type PropertyType string

const (
	TypeApartment PropertyType = "Apartment"
	TypeVilla     PropertyType = "Villa"
	TypeTownhouse PropertyType = "Townhouse"
	TypePenthouse PropertyType = "Penthouse"
	TypeBungalow  PropertyType = "Bungalow"
	TypePlot      PropertyType = "Plot"
)

// ParsePropertyType accepts the canonical enum spelling only. Free-text
// classification lives in the normalizer's synonym table.
func ParsePropertyType(s string) (PropertyType, error) {
	pt := PropertyType(s)
	switch pt {
	case TypeApartment, TypeVilla, TypeTownhouse, TypePenthouse, TypeBungalow, TypePlot:
		return pt, nil
	}
	return "", fmt.Errorf("unknown property type %q", s)
}

// Feature is a normalized amenity flag used by filters.
type Feature string

const (
	FeaturePool            Feature = "pool"
	FeatureSeaViews        Feature = "sea-views"
	FeatureGolf            Feature = "golf"
	FeatureGarden          Feature = "garden"
	FeatureParking         Feature = "parking"
	FeatureTerrace         Feature = "terrace"
	FeatureAirConditioning Feature = "air-conditioning"
	FeatureLift            Feature = "lift"
	// FeatureNearBeach is derived from the GeoTag, never read from a feed.
	FeatureNearBeach Feature = "near-beach"
)

// Listing holds the descriptive fields shared by feed-scoped and merged
// records. Pointer fields are nil when unknown.
type Listing struct {
	Title        string            `json:"title"`
	Descriptions map[string]string `json:"descriptions,omitempty"`
	PropertyType PropertyType      `json:"propertyType"`
	Development  string            `json:"development,omitempty"`
	Builder      string            `json:"builder,omitempty"`
	Town         string            `json:"town"`
	Zone         string            `json:"zone,omitempty"`
	// Price is in whole euros; nil means "price on request".
	Price     *int      `json:"price"`
	Bedrooms  *int      `json:"bedrooms,omitempty"`
	Bathrooms *int      `json:"bathrooms,omitempty"`
	BuiltArea *int      `json:"builtArea,omitempty"`
	PlotSize  *int      `json:"plotSize,omitempty"`
	Floor     *int      `json:"floor,omitempty"`
	Features  []Feature `json:"features,omitempty"`
	Images    []string  `json:"images,omitempty"`
	NewBuild  bool      `json:"newBuild"`
}

// HasFeature reports whether the listing carries feature f.
func (l *Listing) HasFeature(f Feature) bool {
	for _, have := range l.Features {
		if have == f {
			return true
		}
	}
	return false
}

// ParsedProperty is a single listing after schema normalization. Reference
// is unique within SourceFeedID only.
type ParsedProperty struct {
	Reference    string    `json:"reference"`
	SourceFeedID string    `json:"sourceFeedId"`
	FetchedAt    time.Time `json:"fetchedAt"`
	Stale        bool      `json:"stale"`
	Listing
	Geo GeoTag `json:"geo"`
}

// SourceRef identifies one feed record folded into a UnifiedProperty.
type SourceRef struct {
	FeedID    string `json:"feedId"`
	Reference string `json:"reference"`
}

// UnifiedProperty is the de-duplicated listing for one physical unit.
type UnifiedProperty struct {
	GlobalReference string `json:"globalReference"`
	Listing
	Geo         GeoTag      `json:"geo"`
	Sources     []SourceRef `json:"sources"`
	LastFetched time.Time   `json:"lastFetched"`
	// Stale is set when every contributing record came from a fallback snapshot.
	Stale bool `json:"stale"`
}

// IntRange is an inclusive range; both ends are nil when no value was seen.
type IntRange struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

// Extend widens r to include v.
func (r *IntRange) Extend(v *int) {
	if v == nil {
		return
	}
	if r.Min == nil || *v < *r.Min {
		n := *v
		r.Min = &n
	}
	if r.Max == nil || *v > *r.Max {
		n := *v
		r.Max = &n
	}
}

// Development groups units sharing a project name, builder and town.
type Development struct {
	Slug          string            `json:"slug"`
	Name          string            `json:"name"`
	Builder       string            `json:"builder,omitempty"`
	Town          string            `json:"town"`
	Zone          string            `json:"zone,omitempty"`
	Geo           GeoTag            `json:"geo"`
	Units         []UnifiedProperty `json:"units"`
	PriceFrom     *int              `json:"priceFrom"`
	PriceRange    IntRange          `json:"priceRange"`
	BedroomRange  IntRange          `json:"bedroomRange"`
	PropertyTypes []PropertyType    `json:"propertyTypes"`
	Features      []Feature         `json:"features,omitempty"`
	MainImage     string            `json:"mainImage,omitempty"`
	Stale         bool              `json:"stale"`
}

// Builder aggregates developments by developer name.
type Builder struct {
	Slug             string   `json:"slug"`
	Name             string   `json:"name"`
	DevelopmentCount int      `json:"developmentCount"`
	TotalUnits       int      `json:"totalUnits"`
	PriceRange       IntRange `json:"priceRange"`
	Towns            []string `json:"towns"`
	Regions          []Region `json:"regions"`
	Developments     []string `json:"developments"`
}

// DevelopmentStats are the headline counts shown on landing pages.
type DevelopmentStats struct {
	TotalDevelopments int  `json:"totalDevelopments"`
	TotalUnits        int  `json:"totalUnits"`
	LowestPrice       *int `json:"lowestPrice"`
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
