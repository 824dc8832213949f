// Package schema declares how each upstream feed lays out its XML. A profile
// is one of a fixed set of kinds, each with a field-mapping table of XPath
// expressions that is compiled and checked when configuration is loaded.
package schema

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Kind selects a built-in field-mapping table.
type Kind string

const (
	KindKyero   Kind = "kyero"
	KindResales Kind = "resales"
	KindCustom  Kind = "custom"
)

// Field names one normalized attribute a profile can map.
type Field string

const (
	FieldReference   Field = "reference"
	FieldTitle       Field = "title"
	FieldDevelopment Field = "development"
	FieldBuilder     Field = "builder"
	FieldType        Field = "type"
	FieldTown        Field = "town"
	FieldZone        Field = "zone"
	FieldPrice       Field = "price"
	FieldPriceText   Field = "price_text"
	FieldBedrooms    Field = "bedrooms"
	FieldBathrooms   Field = "bathrooms"
	FieldBuiltArea   Field = "built_area"
	FieldPlotSize    Field = "plot_size"
	FieldFloor       Field = "floor"
	FieldPool        Field = "pool"
	FieldNewBuild    Field = "new_build"
	FieldFeatures    Field = "features"
	FieldImages      Field = "images"
)

const descriptionPrefix = "description."

// DescriptionField is the field holding the description for locale.
func DescriptionField(locale string) Field {
	return Field(descriptionPrefix + locale)
}

var knownFields = map[Field]bool{
	FieldReference: true, FieldTitle: true, FieldDevelopment: true, FieldBuilder: true,
	FieldType: true, FieldTown: true, FieldZone: true, FieldPrice: true, FieldPriceText: true,
	FieldBedrooms: true, FieldBathrooms: true, FieldBuiltArea: true, FieldPlotSize: true,
	FieldFloor: true, FieldPool: true, FieldNewBuild: true, FieldFeatures: true, FieldImages: true,
}

// PriceUnit is the unit a feed quotes prices in.
type PriceUnit string

const (
	PriceEuros     PriceUnit = "euros"
	PriceCents     PriceUnit = "cents"
	PriceThousands PriceUnit = "thousands"
)

// AreaUnit is the unit a feed quotes built and plot areas in.
type AreaUnit string

const (
	AreaSquareMetres AreaUnit = "m2"
	AreaSquareFeet   AreaUnit = "sqft"
)

// Profile is the configured layout of one feed. Fields set here override
// the built-in table of Kind.
type Profile struct {
	Kind             Kind             `yaml:"kind"`
	RecordPath       string           `yaml:"record_path"`
	Fields           map[Field]string `yaml:"fields"`
	Currency         string           `yaml:"currency"`
	EURRate          float64          `yaml:"eur_rate"`
	PriceUnit        PriceUnit        `yaml:"price_unit"`
	AreaUnit         AreaUnit         `yaml:"area_unit"`
	ImageBase        string           `yaml:"image_base"`
	OnRequestMarkers []string         `yaml:"on_request_markers"`
}

var builtins = map[Kind]Profile{
	KindKyero: {
		RecordPath: "//property",
		Fields: map[Field]string{
			FieldReference:   "ref",
			FieldDevelopment: "development",
			FieldBuilder:     "developer",
			FieldType:        "type",
			FieldTown:        "town",
			FieldZone:        "location_detail",
			FieldPrice:       "price",
			FieldBedrooms:    "beds",
			FieldBathrooms:   "baths",
			FieldBuiltArea:   "surface_area/built",
			FieldPlotSize:    "surface_area/plot",
			FieldPool:        "pool",
			FieldNewBuild:    "new_build",
			FieldFeatures:    "features/feature",
			FieldImages:      "images/image/url",
			"description.en": "desc/en",
			"description.es": "desc/es",
			"description.de": "desc/de",
			"description.fr": "desc/fr",
			"description.nl": "desc/nl",
			"description.sv": "desc/sv",
			"description.ru": "desc/ru",
		},
	},
	KindResales: {
		RecordPath: "//Property",
		Fields: map[Field]string{
			FieldReference:   "Reference",
			FieldDevelopment: "Development",
			FieldBuilder:     "Developer",
			FieldType:        "PropertyType/NameType",
			FieldTown:        "Location",
			FieldZone:        "Area",
			FieldPrice:       "Price",
			FieldBedrooms:    "Bedrooms",
			FieldBathrooms:   "Bathrooms",
			FieldBuiltArea:   "Built",
			FieldPlotSize:    "GardenPlot",
			FieldFloor:       "Floor",
			FieldFeatures:    "PropertyFeatures/Category/Value",
			FieldImages:      "Pictures/Picture/PictureURL",
			"description.en": "Description",
		},
	},
	KindCustom: {},
}

// Kinds lists the supported profile kinds in a stable order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(builtins))
	for k := range builtins {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// resolve merges p onto its kind's built-in table and fills defaults.
func resolve(p Profile) (Profile, error) {
	base, ok := builtins[p.Kind]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile kind %q (want one of %v)", p.Kind, Kinds())
	}

	out := p
	out.Fields = make(map[Field]string, len(base.Fields)+len(p.Fields))
	for f, expr := range base.Fields {
		out.Fields[f] = expr
	}
	for f, expr := range p.Fields {
		if strings.TrimSpace(expr) == "" {
			// an explicit empty mapping unmaps a built-in field
			delete(out.Fields, f)
			continue
		}
		out.Fields[f] = expr
	}
	if out.RecordPath == "" {
		out.RecordPath = base.RecordPath
	}
	if out.Currency == "" {
		out.Currency = "EUR"
	}
	out.Currency = strings.ToUpper(out.Currency)
	if out.Currency == "EUR" {
		out.EURRate = 1
	}
	if out.PriceUnit == "" {
		out.PriceUnit = PriceEuros
	}
	if out.AreaUnit == "" {
		out.AreaUnit = AreaSquareMetres
	}
	return out, nil
}

func validate(p Profile) error {
	if p.RecordPath == "" {
		return fmt.Errorf("record_path is required for kind %q", p.Kind)
	}
	for f := range p.Fields {
		if !knownFields[f] && !strings.HasPrefix(string(f), descriptionPrefix) {
			return fmt.Errorf("unknown field %q", f)
		}
		if strings.HasPrefix(string(f), descriptionPrefix) && len(f) == len(descriptionPrefix) {
			return fmt.Errorf("description field %q has no locale", f)
		}
	}
	for _, f := range []Field{FieldReference, FieldTown, FieldType} {
		if p.Fields[f] == "" {
			return fmt.Errorf("mandatory field %q is not mapped", f)
		}
	}
	if p.Fields[FieldPrice] == "" && p.Fields[FieldPriceText] == "" {
		return fmt.Errorf("one of %q or %q must be mapped", FieldPrice, FieldPriceText)
	}
	switch p.PriceUnit {
	case PriceEuros, PriceCents, PriceThousands:
	default:
		return fmt.Errorf("unknown price_unit %q", p.PriceUnit)
	}
	switch p.AreaUnit {
	case AreaSquareMetres, AreaSquareFeet:
	default:
		return fmt.Errorf("unknown area_unit %q", p.AreaUnit)
	}
	if p.EURRate <= 0 {
		return fmt.Errorf("currency %s needs a positive eur_rate", p.Currency)
	}
	if p.ImageBase != "" {
		u, err := url.Parse(p.ImageBase)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("image_base %q must be an absolute URL", p.ImageBase)
		}
	}
	return nil
}
