package services

import (
	"sort"
	"strconv"

	"costa-catalog/models"
	"costa-catalog/utils"
)

// Aggregator derives Development and Builder views from merged units.
type Aggregator struct {
	logger *utils.Logger
}

// NewAggregator creates an Aggregator with the given logger.
func NewAggregator(logger *utils.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Developments groups units that carry a development name by name, builder
// and town. Units without one are listed only as properties. Output is
// sorted by slug and slugs are unique.
func (a *Aggregator) Developments(units []models.UnifiedProperty) []models.Development {
	groups := make(map[string][]models.UnifiedProperty)
	var keys []string
	for _, u := range units {
		if u.Development == "" {
			continue
		}
		key := utils.FoldKey(u.Development) + "|" + utils.FoldKey(u.Builder) + "|" + utils.FoldKey(u.Town)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], u)
	}
	sort.Strings(keys)

	slugs := newSlugSet()
	devs := make([]models.Development, 0, len(keys))
	for _, key := range keys {
		d := buildDevelopment(groups[key])
		d.Slug = slugs.claim(d.Name, d.Name+" "+d.Town, d.Name+" "+d.Town+" "+d.Builder)
		devs = append(devs, d)
	}
	sort.Slice(devs, func(i, j int) bool { return devs[i].Slug < devs[j].Slug })

	a.logger.Info("[aggregate] %d units grouped into %d developments", len(units), len(devs))
	return devs
}

func buildDevelopment(units []models.UnifiedProperty) models.Development {
	sortUnitsByPrice(units)
	d := models.Development{Units: units, Stale: true}

	types := make(map[models.PropertyType]struct{})
	features := make(map[models.Feature]struct{})
	for _, u := range units {
		d.Name = firstNonEmpty(d.Name, u.Development)
		d.Builder = firstNonEmpty(d.Builder, u.Builder)
		d.Town = firstNonEmpty(d.Town, u.Town)
		d.Zone = firstNonEmpty(d.Zone, u.Zone)
		d.PriceRange.Extend(u.Price)
		d.BedroomRange.Extend(u.Bedrooms)
		types[u.PropertyType] = struct{}{}
		for _, f := range u.Features {
			features[f] = struct{}{}
		}
		if d.MainImage == "" && len(u.Images) > 0 {
			// units are price-ordered, so this is the cheapest priced unit with images
			d.MainImage = u.Images[0]
		}
		d.Stale = d.Stale && u.Stale
	}
	d.PriceFrom = copyInt(d.PriceRange.Min)
	d.Geo = Classify(d.Town, d.Zone)

	for t := range types {
		d.PropertyTypes = append(d.PropertyTypes, t)
	}
	sort.Slice(d.PropertyTypes, func(i, j int) bool { return d.PropertyTypes[i] < d.PropertyTypes[j] })
	for f := range features {
		d.Features = append(d.Features, f)
	}
	sortFeatures(d.Features)
	return d
}

// Builders groups developments by builder name; developments without one
// are not attributed to any builder.
func (a *Aggregator) Builders(devs []models.Development) []models.Builder {
	groups := make(map[string][]models.Development)
	var keys []string
	for _, d := range devs {
		key := utils.FoldKey(d.Builder)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], d)
	}
	sort.Strings(keys)

	slugs := newSlugSet()
	builders := make([]models.Builder, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		b := models.Builder{Name: group[0].Builder, DevelopmentCount: len(group)}
		b.Slug = slugs.claim(b.Name)

		towns := make(map[string]struct{})
		regions := make(map[models.Region]struct{})
		for _, d := range group {
			b.TotalUnits += len(d.Units)
			b.PriceRange.Extend(d.PriceRange.Min)
			b.PriceRange.Extend(d.PriceRange.Max)
			towns[d.Town] = struct{}{}
			regions[d.Geo.Region] = struct{}{}
			b.Developments = append(b.Developments, d.Slug)
		}
		for t := range towns {
			b.Towns = append(b.Towns, t)
		}
		for r := range regions {
			b.Regions = append(b.Regions, r)
		}
		sort.Strings(b.Towns)
		sort.Slice(b.Regions, func(i, j int) bool { return b.Regions[i] < b.Regions[j] })
		sort.Strings(b.Developments)
		builders = append(builders, b)
	}
	sort.Slice(builders, func(i, j int) bool { return builders[i].Slug < builders[j].Slug })

	a.logger.Info("[aggregate] %d developments attributed to %d builders", len(devs), len(builders))
	return builders
}

// sortUnitsByPrice orders units cheapest first; on-request units go last.
func sortUnitsByPrice(units []models.UnifiedProperty) {
	sort.SliceStable(units, func(i, j int) bool {
		pi, pj := units[i].Price, units[j].Price
		switch {
		case pi == nil && pj == nil:
			return units[i].GlobalReference < units[j].GlobalReference
		case pi == nil:
			return false
		case pj == nil:
			return true
		case *pi != *pj:
			return *pi < *pj
		}
		return units[i].GlobalReference < units[j].GlobalReference
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// slugSet hands out unique slugs, trying each candidate name in turn before
// falling back to a numeric suffix.
type slugSet map[string]bool

func newSlugSet() slugSet { return make(slugSet) }

func (s slugSet) claim(candidates ...string) string {
	var base string
	for _, c := range candidates {
		slug := utils.Slugify(c)
		if slug == "" {
			continue
		}
		if base == "" {
			base = slug
		}
		if !s[slug] {
			s[slug] = true
			return slug
		}
	}
	if base == "" {
		base = "unnamed"
	}
	for n := 2; ; n++ {
		slug := base + "-" + strconv.Itoa(n)
		if !s[slug] {
			s[slug] = true
			return slug
		}
	}
}
