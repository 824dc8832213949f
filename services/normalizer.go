package services

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"costa-catalog/models"
	"costa-catalog/schema"
	"costa-catalog/utils"
)

const sqftPerSquareMetre = 10.7639

var (
	// priceRegexp captures the first signed number, with any thousand/decimal
	// separators. The sign is kept so negative amounts read as unknown.
	priceRegexp = regexp.MustCompile(`-?\d[\d.,\s]*`)
	// intRegexp captures the leading integer of a count such as "3 beds"
	intRegexp = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
)

// defaultOnRequestMarkers flag a listing whose price is deliberately withheld.
var defaultOnRequestMarkers = []string{
	"on request", "price on application", "poa", "p.o.a", "a consultar", "consultar",
	"sobre consulta", "precio a consultar", "auf anfrage", "sur demande", "op aanvraag",
}

// typeSynonyms is checked in order against the folded type string; more
// specific words come first so "penthouse apartment" is a Penthouse and
// "villa with plot" is a Villa.
var typeSynonyms = []struct {
	Type  models.PropertyType
	Words []string
}{
	{models.TypePenthouse, []string{"penthouse", "atico", "duplex penthouse"}},
	{models.TypeBungalow, []string{"bungalow"}},
	{models.TypeTownhouse, []string{"townhouse", "town house", "terraced", "semi-detached", "semi detached",
		"adosado", "adosada", "pareado", "quad", "quad house", "casa de pueblo", "duplex"}},
	{models.TypeVilla, []string{"villa", "chalet", "detached", "finca", "country house", "casa"}},
	{models.TypeApartment, []string{"apartment", "apartamento", "flat", "piso", "studio", "estudio",
		"ground floor", "planta baja", "wohnung", "appartement"}},
	{models.TypePlot, []string{"plot", "land", "parcela", "solar", "terreno", "grundstuck", "terrain"}},
}

// featureAliases maps folded feed feature strings to Feature flags.
var featureAliases = []struct {
	Feature models.Feature
	Words   []string
}{
	{models.FeaturePool, []string{"pool", "piscina", "swimming"}},
	{models.FeatureSeaViews, []string{"sea view", "sea views", "vistas al mar", "vista al mar", "sea-view", "meerblick"}},
	{models.FeatureGolf, []string{"golf"}},
	{models.FeatureGarden, []string{"garden", "jardin"}},
	{models.FeatureParking, []string{"parking", "garage", "garaje", "aparcamiento", "car port", "carport"}},
	{models.FeatureTerrace, []string{"terrace", "terraza", "solarium", "balcony", "balcon"}},
	{models.FeatureAirConditioning, []string{"air conditioning", "aire acondicionado", "a/c", "aircon", "climatizacion"}},
	{models.FeatureLift, []string{"lift", "elevator", "ascensor"}},
}

// DropError explains why a raw record was not turned into a ParsedProperty.
type DropError struct {
	FeedID    string
	Reference string
	Reason    string
}

func (e *DropError) Error() string {
	return fmt.Sprintf("drop %s/%s: %s", e.FeedID, e.Reference, e.Reason)
}

// Normalizer maps raw feed records onto ParsedProperty using each feed's
// compiled schema profile.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// NormalizeAll normalizes every record of every feed result. Dropped records
// are logged and counted by reason; they never reach the output.
func (n *Normalizer) NormalizeAll(results []models.FeedResult, profiles map[string]*schema.Compiled) ([]models.ParsedProperty, map[string]int) {
	dropped := make(map[string]int)
	var total int
	out := make([]models.ParsedProperty, 0)

	for _, res := range results {
		profile, ok := profiles[res.FeedID]
		if !ok {
			n.logger.Error("[normalizer] No profile for feed %s, skipping %d records", res.FeedID, len(res.Records))
			dropped["no profile"] += len(res.Records)
			total += len(res.Records)
			continue
		}
		seen := make(map[string]struct{}, len(res.Records))
		for _, rec := range res.Records {
			total++
			p, err := n.Normalize(rec, profile)
			if err != nil {
				reason := err.Error()
				if de, ok := err.(*DropError); ok {
					reason = de.Reason
				}
				n.logger.Warn("[normalizer] %v", err)
				dropped[reason]++
				continue
			}
			if _, dup := seen[p.Reference]; dup {
				n.logger.Debug("[normalizer] Duplicate reference %s/%s skipped", p.SourceFeedID, p.Reference)
				dropped["duplicate reference"]++
				continue
			}
			seen[p.Reference] = struct{}{}
			out = append(out, p)
		}
	}

	n.logger.Info("[normalizer] Normalized %d → %d records (dropped %d)", total, len(out), total-len(out))
	return out, dropped
}

// Normalize maps one raw record. Records without a reference, town, price
// (or on-request marker) or a recognisable property type are dropped.
func (n *Normalizer) Normalize(rec models.RawFeedRecord, profile *schema.Compiled) (models.ParsedProperty, error) {
	node := rec.Node
	ref := utils.NormaliseText(profile.Text(node, schema.FieldReference))
	drop := func(reason string) (models.ParsedProperty, error) {
		return models.ParsedProperty{}, &DropError{FeedID: rec.FeedID, Reference: ref, Reason: reason}
	}
	if node == nil {
		return drop("empty record")
	}
	if ref == "" {
		return drop("missing reference")
	}

	town := utils.NormaliseText(profile.Text(node, schema.FieldTown))
	if town == "" {
		return drop("missing town")
	}

	price, onRequest := parsePrice(profile.Text(node, schema.FieldPrice), profile)
	if price == nil && !onRequest {
		price, onRequest = parsePrice(profile.Text(node, schema.FieldPriceText), profile)
	}
	if price == nil && !onRequest {
		return drop("missing price")
	}

	rawType := profile.Text(node, schema.FieldType)
	ptype, ok := ClassifyType(rawType)
	if !ok {
		return drop(fmt.Sprintf("unknown property type %q", rawType))
	}

	p := models.ParsedProperty{
		Reference:    ref,
		SourceFeedID: rec.FeedID,
		FetchedAt:    rec.FetchedAt,
		Stale:        rec.Stale,
		Listing: models.Listing{
			PropertyType: ptype,
			Development:  utils.NormaliseText(profile.Text(node, schema.FieldDevelopment)),
			Builder:      utils.NormaliseText(profile.Text(node, schema.FieldBuilder)),
			Town:         town,
			Zone:         utils.NormaliseText(profile.Text(node, schema.FieldZone)),
			Price:        price,
			Bedrooms:     parseCount(profile.Text(node, schema.FieldBedrooms), false),
			Bathrooms:    parseCount(profile.Text(node, schema.FieldBathrooms), false),
			Floor:        parseCount(profile.Text(node, schema.FieldFloor), true),
			BuiltArea:    parseArea(profile.Text(node, schema.FieldBuiltArea), profile.AreaUnit),
			PlotSize:     parseArea(profile.Text(node, schema.FieldPlotSize), profile.AreaUnit),
			NewBuild:     parseFlag(profile.Text(node, schema.FieldNewBuild)),
			Images:       resolveImages(profile.Texts(node, schema.FieldImages), profile.ImageBase),
			Descriptions: descriptions(node, profile),
		},
	}

	p.Features = parseFeatures(profile.Texts(node, schema.FieldFeatures))
	if parseFlag(profile.Text(node, schema.FieldPool)) && !p.HasFeature(models.FeaturePool) {
		p.Features = append(p.Features, models.FeaturePool)
		sortFeatures(p.Features)
	}

	p.Title = utils.NormaliseText(profile.Text(node, schema.FieldTitle))
	if p.Title == "" {
		p.Title = fmt.Sprintf("%s in %s", p.PropertyType, p.Town)
	}
	return p, nil
}

// ClassifyType maps a free-text property type onto the fixed enum.
func ClassifyType(raw string) (models.PropertyType, bool) {
	s := utils.Fold(raw)
	if s == "" {
		return "", false
	}
	for _, syn := range typeSynonyms {
		for _, w := range syn.Words {
			if strings.Contains(s, w) {
				return syn.Type, true
			}
		}
	}
	return "", false
}

// parsePrice converts a feed price string to whole euros. It reports
// onRequest when the text carries an on-request marker. Zero and negative
// amounts are treated as missing.
//
//	"295.000 €"     → 295000
//	"€310,000.00"   → 310000
//	"Price on request" → nil, true
func parsePrice(raw string, profile *schema.Compiled) (*int, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return nil, false
	}
	if isOnRequest(s, profile.OnRequestMarkers) {
		return nil, true
	}

	match := strings.TrimSpace(priceRegexp.FindString(s))
	if match == "" {
		return nil, false
	}
	amount, ok := parseAmount(match)
	if !ok {
		return nil, false
	}

	switch profile.PriceUnit {
	case schema.PriceCents:
		amount /= 100
	case schema.PriceThousands:
		amount *= 1000
	}
	amount *= profile.EURRate

	euros := int(math.Round(amount))
	if euros <= 0 {
		return nil, false
	}
	return &euros, false
}

// parseAmount reads a number written with either "." or "," as thousand
// separator. A final separator followed by one or two digits is a decimal
// point; anything else is grouping.
func parseAmount(s string) (float64, bool) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimRight(s, ".,")
	last := strings.LastIndexAny(s, ".,")
	var intPart, fracPart string
	if last >= 0 && len(s)-last-1 <= 2 {
		intPart, fracPart = s[:last], s[last+1:]
	} else {
		intPart = s
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	num := intPart
	if fracPart != "" {
		num += "." + fracPart
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isOnRequest(s string, extra []string) bool {
	for _, m := range extra {
		if strings.Contains(s, m) {
			return true
		}
	}
	for _, m := range defaultOnRequestMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// parseCount reads a small integer. Non-positive values are unknown unless
// allowZero is set (ground floor is floor 0).
func parseCount(raw string, allowZero bool) *int {
	m := intRegexp.FindString(raw)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return nil
	}
	v := int(f)
	if v < 0 || (v == 0 && !allowZero) {
		return nil
	}
	return &v
}

// parseArea reads an area and converts it to whole square metres. Values
// that are not positive are unknown.
func parseArea(raw string, unit schema.AreaUnit) *int {
	m := priceRegexp.FindString(raw)
	if m == "" {
		return nil
	}
	v, ok := parseAmount(strings.TrimSpace(m))
	if !ok {
		return nil
	}
	if unit == schema.AreaSquareFeet {
		v /= sqftPerSquareMetre
	}
	n := int(math.Round(v))
	if n <= 0 {
		return nil
	}
	return &n
}

func parseFlag(raw string) bool {
	switch utils.Fold(raw) {
	case "1", "true", "yes", "y", "si", "on":
		return true
	}
	return false
}

// resolveImages trims, resolves relative paths against base and removes
// duplicates while keeping feed order.
func resolveImages(raw []string, base *url.URL) []string {
	set := utils.NewURLSet()
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		u, err := url.Parse(r)
		if err != nil {
			continue
		}
		if !u.IsAbs() {
			if base == nil {
				continue
			}
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		set.Add(u.String())
	}
	if set.Size() == 0 {
		return nil
	}
	return set.List()
}

func descriptions(node *xmlquery.Node, profile *schema.Compiled) map[string]string {
	out := make(map[string]string)
	for _, loc := range profile.Locales() {
		text := stripHTML(profile.Text(node, schema.DescriptionField(loc)))
		if text != "" {
			out[loc] = text
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// stripHTML renders markup found in feed descriptions as plain text.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return utils.NormaliseText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return utils.NormaliseText(s)
	}
	doc.Find("br, p, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return utils.NormaliseText(doc.Text())
}

func parseFeatures(raw []string) []models.Feature {
	set := make(map[models.Feature]struct{})
	for _, r := range raw {
		s := utils.Fold(r)
		for _, fa := range featureAliases {
			for _, w := range fa.Words {
				if strings.Contains(s, w) {
					set[fa.Feature] = struct{}{}
					break
				}
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]models.Feature, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sortFeatures(out)
	return out
}

func sortFeatures(fs []models.Feature) {
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
}
