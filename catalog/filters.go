package catalog

import (
	"sort"

	"costa-catalog/models"
	"costa-catalog/services"
	"costa-catalog/utils"
)

func typePtr(t models.PropertyType) *models.PropertyType { return &t }

var defaultFilters = []models.FilterDefinition{
	{Slug: "costa-blanca-south", Title: "Property on the Costa Blanca South",
		Description: "New build homes from Guardamar to Pilar de la Horadada, including Torrevieja and Orihuela Costa.",
		Region:      models.RegionSouth},
	{Slug: "costa-blanca-north", Title: "Property on the Costa Blanca North",
		Description: "New build homes from Alicante city north to Denia, including Benidorm, Altea, Calpe and Javea.",
		Region:      models.RegionNorth},
	{Slug: "costa-calida", Title: "Property on the Costa Calida",
		Description: "New build homes on the Murcia coast around the Mar Menor, Mazarron and Aguilas.",
		Region:      models.RegionCostaCalida},
	{Slug: "apartments", Title: "Apartments",
		Description: "New build apartments across the Costa Blanca and Costa Calida.",
		Type:        typePtr(models.TypeApartment)},
	{Slug: "villas", Title: "Villas",
		Description: "Detached new build villas, most with private gardens and pools.",
		Type:        typePtr(models.TypeVilla)},
	{Slug: "townhouses", Title: "Townhouses",
		Description: "Terraced and semi-detached new build townhouses.",
		Type:        typePtr(models.TypeTownhouse)},
	{Slug: "penthouses", Title: "Penthouses",
		Description: "Top floor apartments with private roof terraces.",
		Type:        typePtr(models.TypePenthouse)},
	{Slug: "bungalows", Title: "Bungalows",
		Description: "Ground and upper floor bungalows in low rise developments.",
		Type:        typePtr(models.TypeBungalow)},
	{Slug: "land-plots", Title: "Building plots",
		Description: "Building plots for a custom villa, sold with or without a project.",
		Type:        typePtr(models.TypePlot)},
	{Slug: "apartments-torrevieja", Title: "Apartments in Torrevieja",
		Description: "New build apartments in Torrevieja, close to the beaches and the salt lakes.",
		Type:        typePtr(models.TypeApartment), Town: "Torrevieja"},
	{Slug: "apartments-benidorm", Title: "Apartments in Benidorm",
		Description: "New build apartments in Benidorm and its high rise seafront.",
		Type:        typePtr(models.TypeApartment), Town: "Benidorm"},
	{Slug: "villas-orihuela-costa", Title: "Villas in Orihuela Costa",
		Description: "New build villas in Orihuela Costa, from La Zenia to Villamartin and the golf courses.",
		Type:        typePtr(models.TypeVilla), Town: "Orihuela Costa"},
	{Slug: "villas-javea", Title: "Villas in Javea",
		Description: "New build villas in Javea, between the Montgo and the Arenal beach.",
		Type:        typePtr(models.TypeVilla), Town: "Javea"},
	{Slug: "villas-finestrat", Title: "Villas in Finestrat",
		Description: "New build villas in Finestrat, with views over Benidorm bay.",
		Type:        typePtr(models.TypeVilla), Town: "Finestrat"},
	{Slug: "2-bedroom-apartments", Title: "2 bedroom apartments",
		Description: "Apartments with two bedrooms, the most common holiday and rental layout.",
		Type:        typePtr(models.TypeApartment), Bedrooms: models.IntPtr(2)},
	{Slug: "3-bedroom-villas", Title: "3 bedroom villas",
		Description: "Villas with three bedrooms for families and long stays.",
		Type:        typePtr(models.TypeVilla), Bedrooms: models.IntPtr(3)},
	{Slug: "under-200000", Title: "Property under €200,000",
		Description: "New build homes priced at or below €200,000.",
		MaxPrice:    models.IntPtr(200000)},
	{Slug: "luxury-villas", Title: "Luxury villas",
		Description: "Villas from €750,000, with high-end finishes and the best locations.",
		Type:        typePtr(models.TypeVilla), MinPrice: models.IntPtr(750000)},
	{Slug: "villas-with-pool", Title: "Villas with private pool",
		Description: "Villas with their own private swimming pool.",
		Type:        typePtr(models.TypeVilla), Features: []models.Feature{models.FeaturePool}},
	{Slug: "sea-view-penthouses", Title: "Penthouses with sea views",
		Description: "Penthouses whose terraces look out over the Mediterranean.",
		Type:        typePtr(models.TypePenthouse), Features: []models.Feature{models.FeatureSeaViews}},
	{Slug: "golf-properties", Title: "Golf properties",
		Description: "Homes on or beside a golf course.",
		Features:    []models.Feature{models.FeatureGolf}},
	{Slug: "beach-properties", Title: "Property near the beach",
		Description: "Homes within walking distance of the beach.",
		Features:    []models.Feature{models.FeatureNearBeach}},
	{Slug: "beach-apartments-south", Title: "Beach apartments on the Costa Blanca South",
		Description: "Apartments near the beach on the Costa Blanca South.",
		Type:        typePtr(models.TypeApartment), Region: models.RegionSouth,
		Features: []models.Feature{models.FeatureNearBeach}},
}

// DefaultFilters returns the filter table keyed by slug. The map is a copy.
func DefaultFilters() map[string]models.FilterDefinition {
	out := make(map[string]models.FilterDefinition, len(defaultFilters))
	for _, f := range defaultFilters {
		out[f.Slug] = f
	}
	return out
}

// MatchesFilter reports whether p satisfies every predicate set on f, tested
// in order: type, town, bedrooms, price bounds, region, features. A unit with
// no price fails any price bound.
func MatchesFilter(p models.UnifiedProperty, f models.FilterDefinition) bool {
	if f.Type != nil && p.PropertyType != *f.Type {
		return false
	}
	if f.Town != "" && utils.Fold(p.Town) != utils.Fold(f.Town) {
		return false
	}
	if f.Bedrooms != nil && (p.Bedrooms == nil || *p.Bedrooms != *f.Bedrooms) {
		return false
	}
	if f.MinPrice != nil && (p.Price == nil || *p.Price < *f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && (p.Price == nil || *p.Price > *f.MaxPrice) {
		return false
	}
	if f.Region != "" && services.RegionFor(p.Town) != f.Region {
		return false
	}
	for _, feat := range f.Features {
		if feat == models.FeatureNearBeach {
			if !p.Geo.NearBeach() {
				return false
			}
			continue
		}
		if !p.HasFeature(feat) {
			return false
		}
	}
	return true
}

// MatchesDevelopment reports whether any unit of d matches f.
func MatchesDevelopment(d models.Development, f models.FilterDefinition) bool {
	for _, u := range d.Units {
		if MatchesFilter(u, f) {
			return true
		}
	}
	return false
}

// FilterIndex holds the evaluated result set of every filter.
type FilterIndex struct {
	defs  map[string]models.FilterDefinition
	props map[string][]models.UnifiedProperty
	devs  map[string][]models.Development
}

// BuildFilterIndex evaluates every definition against the catalog. It is
// total: each slug gets a result set, possibly empty.
func BuildFilterIndex(c *Catalog, defs map[string]models.FilterDefinition) *FilterIndex {
	idx := &FilterIndex{
		defs:  make(map[string]models.FilterDefinition, len(defs)),
		props: make(map[string][]models.UnifiedProperty, len(defs)),
		devs:  make(map[string][]models.Development, len(defs)),
	}
	for slug, def := range defs {
		idx.defs[slug] = def
		props := []models.UnifiedProperty{}
		for _, u := range c.units {
			if MatchesFilter(u, def) {
				props = append(props, u)
			}
		}
		devs := []models.Development{}
		for _, d := range c.developments {
			if MatchesDevelopment(d, def) {
				devs = append(devs, d)
			}
		}
		idx.props[slug] = props
		idx.devs[slug] = devs
	}
	return idx
}

// StaticParams lists every filter slug, sorted, for static page generation.
func (idx *FilterIndex) StaticParams() []string {
	slugs := make([]string, 0, len(idx.defs))
	for slug := range idx.defs {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Definition returns the filter registered under slug.
func (idx *FilterIndex) Definition(slug string) (models.FilterDefinition, bool) {
	def, ok := idx.defs[slug]
	return def, ok
}

// Properties returns the units matching slug.
func (idx *FilterIndex) Properties(slug string) []models.UnifiedProperty {
	out := make([]models.UnifiedProperty, len(idx.props[slug]))
	copy(out, idx.props[slug])
	return out
}

// Developments returns the developments with at least one unit matching slug.
func (idx *FilterIndex) Developments(slug string) []models.Development {
	out := make([]models.Development, len(idx.devs[slug]))
	copy(out, idx.devs[slug])
	return out
}

// Count is the number of units matching slug.
func (idx *FilterIndex) Count(slug string) int {
	return len(idx.props[slug])
}

// RelatedFilters suggests up to limit other non-empty filters sharing the
// town, type or region of slug, sorted by slug.
func (idx *FilterIndex) RelatedFilters(slug string, limit int) []string {
	def, ok := idx.defs[slug]
	if !ok || limit <= 0 {
		return nil
	}
	var out []string
	for _, other := range idx.StaticParams() {
		if other == slug || idx.Count(other) == 0 {
			continue
		}
		o := idx.defs[other]
		sameTown := def.Town != "" && utils.Fold(def.Town) == utils.Fold(o.Town)
		sameType := def.Type != nil && o.Type != nil && *def.Type == *o.Type
		sameRegion := def.Region != "" && (def.Region == o.Region || (o.Town != "" && services.RegionFor(o.Town) == def.Region))
		if sameTown || sameType || sameRegion {
			out = append(out, other)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
