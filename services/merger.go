package services

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"costa-catalog/models"
	"costa-catalog/utils"
)

// unitNamespace seeds the name-based UUIDs used as global references.
var unitNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://costa-catalog/units"))

// contribution is one input to a merged unit: a single feed record on the
// first pass, or an already-merged unit when re-merging.
type contribution struct {
	listing models.Listing
	fetched time.Time
	stale   bool
	sources []models.SourceRef
	order   int
}

type group struct {
	key      string
	contribs []contribution
}

// Merger folds records describing the same physical unit into one
// UnifiedProperty.
type Merger struct {
	logger *utils.Logger
}

// NewMerger creates a Merger with the given logger.
func NewMerger(logger *utils.Logger) *Merger {
	return &Merger{logger: logger}
}

// GroupKey is the matching key of a record: development, town, bedrooms and
// floor. Records without a development name are never matched across feeds.
func GroupKey(p models.ParsedProperty) string {
	if p.Development == "" {
		return "ref:" + p.SourceFeedID + ":" + p.Reference
	}
	return fmt.Sprintf("dev:%s|%s|%s|%s",
		utils.FoldKey(p.Development), utils.FoldKey(p.Town), intKey(p.Bedrooms), intKey(p.Floor))
}

// GlobalReference derives the stable id of a merge group.
func GlobalReference(key string) string {
	return uuid.NewSHA1(unitNamespace, []byte(key)).String()
}

// Merge groups records by GroupKey and merges each group. Two records of the
// same feed are distinct units even when their keys match, so they land in
// separate buckets ("#2", "#3" ...) of that key. Buckets are assigned by
// Reference order within the feed, so reordering a feed does not move a
// unit to another bucket.
func (m *Merger) Merge(records []models.ParsedProperty) []models.UnifiedProperty {
	buckets := make(map[string][]*group)
	var groups []*group
	ranks := sameFeedRanks(records)

	for i, p := range records {
		key := GroupKey(p)
		rank := ranks[i]
		for n := len(buckets[key]); n <= rank; n++ {
			k := key
			if n > 0 {
				k = key + "#" + strconv.Itoa(n+1)
			}
			g := &group{key: k}
			buckets[key] = append(buckets[key], g)
			groups = append(groups, g)
		}
		if rank > 0 {
			m.logger.Debug("[merger] %s/%s shares key %q with another unit of its feed", p.SourceFeedID, p.Reference, key)
		}
		target := buckets[key][rank]
		target.contribs = append(target.contribs, contribution{
			listing: p.Listing,
			fetched: p.FetchedAt,
			stale:   p.Stale,
			sources: []models.SourceRef{{FeedID: p.SourceFeedID, Reference: p.Reference}},
			order:   i,
		})
	}

	out := make([]models.UnifiedProperty, 0, len(groups))
	for _, g := range groups {
		out = append(out, m.mergeGroup(GlobalReference(g.key), g.contribs))
	}
	sortUnits(out)
	m.logger.Info("[merger] Merged %d records into %d units", len(records), len(out))
	return out
}

// sameFeedRanks returns, for each record, its position among the records of
// the same feed sharing its GroupKey, ordered by Reference.
func sameFeedRanks(records []models.ParsedProperty) []int {
	slots := make(map[string][]int)
	for i, p := range records {
		k := GroupKey(p) + "\x00" + p.SourceFeedID
		slots[k] = append(slots[k], i)
	}
	ranks := make([]int, len(records))
	for _, idx := range slots {
		sort.SliceStable(idx, func(a, b int) bool {
			return records[idx[a]].Reference < records[idx[b]].Reference
		})
		for r, i := range idx {
			ranks[i] = r
		}
	}
	return ranks
}

// Remerge merges units sharing a GlobalReference. It is idempotent:
// Remerge(Remerge(x)) equals Remerge(x), and a unit merged with itself is
// unchanged.
func (m *Merger) Remerge(units []models.UnifiedProperty) []models.UnifiedProperty {
	byRef := make(map[string][]contribution)
	var order []string
	for i, u := range units {
		if _, ok := byRef[u.GlobalReference]; !ok {
			order = append(order, u.GlobalReference)
		}
		byRef[u.GlobalReference] = append(byRef[u.GlobalReference], contribution{
			listing: u.Listing,
			fetched: u.LastFetched,
			stale:   u.Stale,
			sources: u.Sources,
			order:   i,
		})
	}

	out := make([]models.UnifiedProperty, 0, len(order))
	for _, ref := range order {
		out = append(out, m.mergeGroup(ref, byRef[ref]))
	}
	sortUnits(out)
	return out
}

// mergeGroup applies the precedence rules: lowest price, image union in
// input order, feature union, and the most recently fetched non-empty value
// for everything else (ties go to the later input).
func (m *Merger) mergeGroup(ref string, contribs []contribution) models.UnifiedProperty {
	// input order drives image concatenation
	byInput := append([]contribution(nil), contribs...)
	sort.SliceStable(byInput, func(i, j int) bool { return byInput[i].order < byInput[j].order })

	// oldest first, so later assignments win
	byRecency := append([]contribution(nil), byInput...)
	sort.SliceStable(byRecency, func(i, j int) bool { return byRecency[i].fetched.Before(byRecency[j].fetched) })

	u := models.UnifiedProperty{GlobalReference: ref, Stale: true}
	l := &u.Listing
	descs := make(map[string]string)
	features := make(map[models.Feature]struct{})
	sourceSet := make(map[models.SourceRef]struct{})

	for _, c := range byRecency {
		src := c.listing
		setString(&l.Title, src.Title)
		setString(&l.Development, src.Development)
		setString(&l.Builder, src.Builder)
		setString(&l.Town, src.Town)
		setString(&l.Zone, src.Zone)
		if src.PropertyType != "" {
			if l.PropertyType != "" && l.PropertyType != src.PropertyType {
				m.logger.Debug("[merger] %s type conflict %s → %s", ref, l.PropertyType, src.PropertyType)
			}
			l.PropertyType = src.PropertyType
		}
		setInt(&l.Bedrooms, src.Bedrooms)
		setInt(&l.Bathrooms, src.Bathrooms)
		setInt(&l.BuiltArea, src.BuiltArea)
		setInt(&l.PlotSize, src.PlotSize)
		setInt(&l.Floor, src.Floor)
		l.NewBuild = l.NewBuild || src.NewBuild

		if src.Price != nil {
			if l.Price == nil {
				l.Price = copyInt(src.Price)
			} else if *src.Price != *l.Price {
				m.logger.Debug("[merger] %s price conflict %d vs %d, keeping lowest", ref, *l.Price, *src.Price)
				if *src.Price < *l.Price {
					l.Price = copyInt(src.Price)
				}
			}
		}
		for loc, text := range src.Descriptions {
			if text != "" {
				descs[loc] = text
			}
		}
		for _, f := range src.Features {
			features[f] = struct{}{}
		}
		for _, s := range c.sources {
			sourceSet[s] = struct{}{}
		}
		if c.fetched.After(u.LastFetched) {
			u.LastFetched = c.fetched
		}
		u.Stale = u.Stale && c.stale
	}

	images := utils.NewURLSet()
	for _, c := range byInput {
		for _, img := range c.listing.Images {
			images.Add(img)
		}
	}
	if images.Size() > 0 {
		l.Images = images.List()
	}
	if len(descs) > 0 {
		l.Descriptions = descs
	}
	if len(features) > 0 {
		l.Features = make([]models.Feature, 0, len(features))
		for f := range features {
			l.Features = append(l.Features, f)
		}
		sortFeatures(l.Features)
	}

	u.Sources = make([]models.SourceRef, 0, len(sourceSet))
	for s := range sourceSet {
		u.Sources = append(u.Sources, s)
	}
	sort.Slice(u.Sources, func(i, j int) bool {
		if u.Sources[i].FeedID != u.Sources[j].FeedID {
			return u.Sources[i].FeedID < u.Sources[j].FeedID
		}
		return u.Sources[i].Reference < u.Sources[j].Reference
	})

	u.Geo = Classify(l.Town, l.Zone)
	return u
}

func sortUnits(units []models.UnifiedProperty) {
	sort.Slice(units, func(i, j int) bool { return units[i].GlobalReference < units[j].GlobalReference })
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst **int, v *int) {
	if v != nil {
		*dst = copyInt(v)
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func intKey(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
