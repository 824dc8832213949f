package services

import (
	"strings"

	"costa-catalog/models"
	"costa-catalog/utils"
)

// BeachZone is one gazetteer rule: a zone containing any alias is tagged
// with Beach at Distance.
type BeachZone struct {
	Beach    string
	Aliases  []string
	Distance models.BeachDistance
}

// beachZones is evaluated top to bottom and the first rule with a matching
// alias wins. Inland and "lomas"/"golf" zones sit above the beach they
// share a name with so they keep their short-drive tier.
var beachZones = []BeachZone{
	// Costa Blanca south
	{Beach: "Playa de La Zenia", Aliases: []string{"los dolses", "montezenia"}, Distance: models.DistanceShortDrive},
	{Beach: "Playa de La Zenia", Aliases: []string{"la zenia", "zenia"}, Distance: models.DistanceWalking},
	{Beach: "Cala Cerrada", Aliases: []string{"lomas de cabo roig", "lomas de campoamor"}, Distance: models.DistanceShortDrive},
	{Beach: "Playa de Cabo Roig", Aliases: []string{"cabo roig"}, Distance: models.DistanceWalking},
	{Beach: "Playa Flamenca", Aliases: []string{"villamartin", "las ramblas", "blue lagoon"}, Distance: models.DistanceShortDrive},
	{Beach: "Playa Flamenca", Aliases: []string{"playa flamenca", "flamenca"}, Distance: models.DistanceWalking},
	{Beach: "Playa de Punta Prima", Aliases: []string{"punta prima"}, Distance: models.DistanceWalking},
	{Beach: "Playa de Mil Palmeras", Aliases: []string{"mil palmeras"}, Distance: models.DistanceBeachfront},
	{Beach: "Playa de Campoamor", Aliases: []string{"campoamor"}, Distance: models.DistanceWalking},
	{Beach: "Playa de la Torre de la Horadada", Aliases: []string{"torre de la horadada"}, Distance: models.DistanceWalking},
	{Beach: "Playa de las Higuericas", Aliases: []string{"pilar de la horadada"}, Distance: models.DistanceShortDrive},
	{Beach: "Playa de La Mata", Aliases: []string{"la mata"}, Distance: models.DistanceWalking},
	{Beach: "Playa del Cura", Aliases: []string{"playa del cura", "torrevieja centro", "paseo maritimo"}, Distance: models.DistanceWalking},
	{Beach: "Playa de Los Locos", Aliases: []string{"los locos", "cabo cervera"}, Distance: models.DistanceWalking},
	{Beach: "Playa de Guardamar", Aliases: []string{"el raso", "guardamar"}, Distance: models.DistanceShortDrive},
	// Costa Blanca north
	{Beach: "Playa de Levante", Aliases: []string{"rincon de loix", "levante"}, Distance: models.DistanceWalking},
	{Beach: "Playa de Poniente", Aliases: []string{"poniente"}, Distance: models.DistanceWalking},
	{Beach: "Playa del Albir", Aliases: []string{"albir"}, Distance: models.DistanceWalking},
	{Beach: "Playa de La Fossa", Aliases: []string{"la fossa"}, Distance: models.DistanceBeachfront},
	{Beach: "Playa del Arenal", Aliases: []string{"arenal"}, Distance: models.DistanceWalking},
	{Beach: "Playa de L'Ampolla", Aliases: []string{"l'ampolla", "ampolla"}, Distance: models.DistanceWalking},
	{Beach: "Playa del Portet", Aliases: []string{"el portet"}, Distance: models.DistanceBeachfront},
	{Beach: "Cala de Finestrat", Aliases: []string{"cala de finestrat"}, Distance: models.DistanceWalking},
	// Costa Calida
	{Beach: "Mar Menor", Aliases: []string{"mar menor golf", "roda golf", "hacienda del alamo"}, Distance: models.DistanceShortDrive},
	{Beach: "Playa de La Manga", Aliases: []string{"la manga"}, Distance: models.DistanceBeachfront},
	{Beach: "Playa de Los Alcazares", Aliases: []string{"los alcazares"}, Distance: models.DistanceWalking},
	{Beach: "Playa de Lo Pagan", Aliases: []string{"lo pagan"}, Distance: models.DistanceWalking},
	{Beach: "Playa de Santiago de la Ribera", Aliases: []string{"santiago de la ribera"}, Distance: models.DistanceWalking},
	{Beach: "Playa de Bolnuevo", Aliases: []string{"puerto de mazarron", "bolnuevo"}, Distance: models.DistanceWalking},
}

// Region town lists. They are disjoint; a town in none of them is "other".
var (
	southTowns = []string{
		"Orihuela Costa", "Orihuela", "Torrevieja", "Guardamar del Segura", "Pilar de la Horadada",
		"Rojales", "Ciudad Quesada", "Algorfa", "San Miguel de Salinas", "Benijofar",
		"Formentera del Segura", "Daya Nueva", "Almoradi", "Los Montesinos", "Santa Pola",
		"Gran Alacant", "Elche", "Alicante", "Villamartin", "La Zenia", "Cabo Roig", "Punta Prima",
		"Playa Flamenca", "Campoamor", "La Mata", "Mil Palmeras",
	}
	northTowns = []string{
		"Benidorm", "Altea", "Calpe", "Calp", "Javea", "Xabia", "Denia", "Moraira", "Teulada",
		"Benitachell", "Benitatxell", "Finestrat", "Polop", "La Nucia", "Alfaz del Pi",
		"L'Alfas del Pi", "Villajoyosa", "La Vila Joiosa", "Orba", "Pedreguer", "Benissa",
		"Campello", "El Campello", "Busot", "Relleu",
	}
	costaCalidaTowns = []string{
		"Murcia", "San Javier", "Los Alcazares", "San Pedro del Pinatar", "Cartagena", "Mazarron",
		"Puerto de Mazarron", "Aguilas", "Torre-Pacheco", "Torre Pacheco", "La Manga", "La Manga del Mar Menor",
		"Santiago de la Ribera", "Lo Pagan", "Sucina", "Balsicas", "Roldan", "Fuente Alamo",
		"Alhama de Murcia", "Corvera",
	}
)

var regionIndex = buildRegionIndex()

func buildRegionIndex() map[string]models.Region {
	idx := make(map[string]models.Region)
	add := func(towns []string, r models.Region) {
		for _, t := range towns {
			idx[utils.Fold(t)] = r
		}
	}
	add(southTowns, models.RegionSouth)
	add(northTowns, models.RegionNorth)
	add(costaCalidaTowns, models.RegionCostaCalida)
	return idx
}

// RegionFor classifies a town into its coastal region, or RegionOther.
func RegionFor(town string) models.Region {
	if r, ok := regionIndex[utils.Fold(town)]; ok {
		return r
	}
	return models.RegionOther
}

// RegionTowns returns the configured town list for r; nil for RegionOther.
func RegionTowns(r models.Region) []string {
	var src []string
	switch r {
	case models.RegionSouth:
		src = southTowns
	case models.RegionNorth:
		src = northTowns
	case models.RegionCostaCalida:
		src = costaCalidaTowns
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// BeachTag is the zone-only beach lookup used by listing badges.
type BeachTag struct {
	IsBeach  bool                 `json:"isBeach"`
	Beach    string               `json:"beach,omitempty"`
	Distance models.BeachDistance `json:"distance"`
}

// GetBeachTag matches zone against the gazetteer. It is pure: the same zone
// always yields the same tag.
func GetBeachTag(zone string) BeachTag {
	z := utils.Fold(zone)
	if z == "" {
		return BeachTag{Distance: models.DistanceNone}
	}
	for _, bz := range beachZones {
		for _, alias := range bz.Aliases {
			if strings.Contains(z, alias) {
				return BeachTag{IsBeach: true, Beach: bz.Beach, Distance: bz.Distance}
			}
		}
	}
	return BeachTag{Distance: models.DistanceNone}
}

// BeachZones returns a copy of the gazetteer in priority order, for display
// and counting.
func BeachZones() []BeachZone {
	out := make([]BeachZone, len(beachZones))
	for i, bz := range beachZones {
		out[i] = BeachZone{Beach: bz.Beach, Distance: bz.Distance, Aliases: append([]string(nil), bz.Aliases...)}
	}
	return out
}

// Classify derives the GeoTag of a (town, zone) pair.
func Classify(town, zone string) models.GeoTag {
	tag := models.GeoTag{BeachDistance: models.DistanceNone, Region: RegionFor(town)}
	if bt := GetBeachTag(zone); bt.IsBeach {
		name := bt.Beach
		tag.BeachName = &name
		tag.BeachDistance = bt.Distance
	}
	return tag
}

// Classifier attaches GeoTags to parsed records.
type Classifier struct {
	logger *utils.Logger
}

// NewClassifier creates a Classifier with the given logger.
func NewClassifier(logger *utils.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Tag sets Geo on every record in place and returns how many zones matched
// no gazetteer entry. Unmatched zones are a valid, untagged state.
func (c *Classifier) Tag(records []models.ParsedProperty) (unclassified int) {
	for i := range records {
		records[i].Geo = Classify(records[i].Town, records[i].Zone)
		if records[i].Geo.BeachDistance == models.DistanceNone {
			unclassified++
			c.logger.Debug("[geo] No beach for %s/%s zone %q", records[i].SourceFeedID, records[i].Reference, records[i].Zone)
		}
		if records[i].Geo.Region == models.RegionOther {
			c.logger.Debug("[geo] Town %q is outside the known regions", records[i].Town)
		}
	}
	c.logger.Info("[geo] Tagged %d records (%d without beach)", len(records), unclassified)
	return unclassified
}
