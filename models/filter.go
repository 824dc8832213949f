package models

// FilterDefinition is a named predicate over the catalog, mapped to the SEO
// copy of the collection page it generates. Nil and empty fields are not
// filtered on.
type FilterDefinition struct {
	Slug        string        `json:"slug"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Type        *PropertyType `json:"type,omitempty"`
	Town        string        `json:"town,omitempty"`
	Bedrooms    *int          `json:"bedrooms,omitempty"`
	MinPrice    *int          `json:"minPrice,omitempty"`
	MaxPrice    *int          `json:"maxPrice,omitempty"`
	Region      Region        `json:"region,omitempty"`
	Features    []Feature     `json:"features,omitempty"`
}
