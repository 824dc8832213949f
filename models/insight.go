package models

// InsightReport summarises one catalog for the console report.
type InsightReport struct {
	TotalUnits        int
	PricedUnits       int
	OnRequestUnits    int
	TotalDevelopments int
	AveragePrice      int
	MinPrice          int
	MaxPrice          int
	MostExpensive     *UnifiedProperty
	CheapestDevs      []Development
	UnitsByRegion     map[Region]int
	UnitsByDistance   map[BeachDistance]int
	UnitsByType       map[PropertyType]int
}
