package models

// BeachDistance is the proximity tier of a listing to its named beach.
type BeachDistance string

const (
	DistanceBeachfront BeachDistance = "beachfront"
	DistanceWalking    BeachDistance = "walking"
	DistanceShortDrive BeachDistance = "short-drive"
	DistanceNone       BeachDistance = "none"
)

// Region is the coastal area a town belongs to.
type Region string

const (
	RegionSouth       Region = "south"
	RegionNorth       Region = "north"
	RegionCostaCalida Region = "costa-calida"
	RegionOther       Region = "other"
)

// GeoTag is derived from (town, zone); it is never read from a feed.
// BeachDistance != DistanceNone implies BeachName != nil.
type GeoTag struct {
	BeachName     *string       `json:"beachName"`
	BeachDistance BeachDistance `json:"beachDistance"`
	Region        Region        `json:"region"`
}

// NearBeach reports whether the tag puts the listing on or walking distance
// from a beach.
func (g GeoTag) NearBeach() bool {
	return g.BeachDistance == DistanceBeachfront || g.BeachDistance == DistanceWalking
}
