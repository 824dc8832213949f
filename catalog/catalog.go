// Package catalog holds the immutable result of one pipeline run and the
// store that publishes it to readers.
package catalog

import (
	"sort"
	"sync"
	"time"

	"costa-catalog/models"
)

// Catalog is the read-only output of one run. Accessors return fresh slices;
// the elements share nested data with the catalog and must not be modified.
type Catalog struct {
	generatedAt  time.Time
	units        []models.UnifiedProperty
	developments []models.Development
	builders     []models.Builder
	report       models.RunReport
	stale        bool

	devIndex     map[string]int
	builderIndex map[string]int

	statsOnce sync.Once
	stats     models.DevelopmentStats

	filtersOnce sync.Once
	filters     *FilterIndex
}

// New assembles a catalog. It is stale when any feed was served from a
// fallback snapshot.
func New(units []models.UnifiedProperty, devs []models.Development, builders []models.Builder, report models.RunReport, generatedAt time.Time) *Catalog {
	c := &Catalog{
		generatedAt:  generatedAt,
		units:        append([]models.UnifiedProperty(nil), units...),
		developments: append([]models.Development(nil), devs...),
		builders:     append([]models.Builder(nil), builders...),
		report:       report,
		stale:        len(report.StaleFeeds) > 0,
		devIndex:     make(map[string]int, len(devs)),
		builderIndex: make(map[string]int, len(builders)),
	}
	for i, d := range c.developments {
		c.devIndex[d.Slug] = i
	}
	for i, b := range c.builders {
		c.builderIndex[b.Slug] = i
	}
	return c
}

// GeneratedAt is when the run that produced c finished.
func (c *Catalog) GeneratedAt() time.Time { return c.generatedAt }

// Stale reports whether c contains data substituted from a fallback snapshot.
func (c *Catalog) Stale() bool { return c.stale }

// Report returns the counters of the run that produced c.
func (c *Catalog) Report() models.RunReport { return c.report }

// Properties returns every unified unit, sorted by global reference.
func (c *Catalog) Properties() []models.UnifiedProperty {
	return append([]models.UnifiedProperty(nil), c.units...)
}

// AllDevelopments returns every development, sorted by slug.
func (c *Catalog) AllDevelopments() []models.Development {
	return append([]models.Development(nil), c.developments...)
}

// AllBuilders returns every builder, sorted by slug.
func (c *Catalog) AllBuilders() []models.Builder {
	return append([]models.Builder(nil), c.builders...)
}

// Development looks up a development by slug.
func (c *Catalog) Development(slug string) (models.Development, bool) {
	i, ok := c.devIndex[slug]
	if !ok {
		return models.Development{}, false
	}
	return c.developments[i], true
}

// Builder looks up a builder by slug.
func (c *Catalog) Builder(slug string) (models.Builder, bool) {
	i, ok := c.builderIndex[slug]
	if !ok {
		return models.Builder{}, false
	}
	return c.builders[i], true
}

// DevelopmentStats counts developments and units and finds the lowest known
// price. It is computed from the catalog contents on first use.
func (c *Catalog) DevelopmentStats() models.DevelopmentStats {
	c.statsOnce.Do(func() {
		c.stats = models.DevelopmentStats{
			TotalDevelopments: len(c.developments),
			TotalUnits:        len(c.units),
		}
		for _, u := range c.units {
			if u.Price != nil && (c.stats.LowestPrice == nil || *u.Price < *c.stats.LowestPrice) {
				c.stats.LowestPrice = models.IntPtr(*u.Price)
			}
		}
	})
	return c.stats
}

// LandPlots returns plots priced at or above minPrice, cheapest first.
// Plots without a price never qualify.
func (c *Catalog) LandPlots(minPrice int) []models.UnifiedProperty {
	var out []models.UnifiedProperty
	for _, u := range c.units {
		if u.PropertyType == models.TypePlot && u.Price != nil && *u.Price >= minPrice {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Price < *out[j].Price })
	return out
}

// XMLFeed returns the units that belong to no development, for the
// pass-through listing feed.
func (c *Catalog) XMLFeed() []models.UnifiedProperty {
	var out []models.UnifiedProperty
	for _, u := range c.units {
		if u.Development == "" {
			out = append(out, u)
		}
	}
	return out
}

// Filters evaluates DefaultFilters against c once and caches the index.
func (c *Catalog) Filters() *FilterIndex {
	c.filtersOnce.Do(func() {
		c.filters = BuildFilterIndex(c, DefaultFilters())
	})
	return c.filters
}

// Export is the serialised form of a catalog, written as catalog.json.
type Export struct {
	GeneratedAt  time.Time                `json:"generatedAt"`
	Stale        bool                     `json:"stale"`
	Report       models.RunReport         `json:"report"`
	Stats        models.DevelopmentStats  `json:"stats"`
	Properties   []models.UnifiedProperty `json:"properties"`
	Developments []models.Development     `json:"developments"`
	Builders     []models.Builder         `json:"builders"`
	Filters      map[string][]string      `json:"filters"`
}

// Export snapshots c for persistence. Filters maps each slug to the global
// references of its matching units.
func (c *Catalog) Export() Export {
	idx := c.Filters()
	filters := make(map[string][]string, len(idx.defs))
	for _, slug := range idx.StaticParams() {
		refs := make([]string, 0, idx.Count(slug))
		for _, u := range idx.props[slug] {
			refs = append(refs, u.GlobalReference)
		}
		filters[slug] = refs
	}
	return Export{
		GeneratedAt:  c.generatedAt,
		Stale:        c.stale,
		Report:       c.report,
		Stats:        c.DevelopmentStats(),
		Properties:   c.Properties(),
		Developments: c.AllDevelopments(),
		Builders:     c.AllBuilders(),
		Filters:      filters,
	}
}

// FromExport rebuilds a catalog from its serialised form. Stats and filters
// are recomputed rather than trusted.
func FromExport(e Export) *Catalog {
	c := New(e.Properties, e.Developments, e.Builders, e.Report, e.GeneratedAt)
	c.stale = c.stale || e.Stale
	return c
}
