package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"costa-catalog/models"
	"costa-catalog/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(units []models.UnifiedProperty, devs []models.Development) *models.InsightReport {
	report := &models.InsightReport{
		UnitsByRegion:   make(map[models.Region]int),
		UnitsByDistance: make(map[models.BeachDistance]int),
		UnitsByType:     make(map[models.PropertyType]int),
	}

	report.TotalUnits = len(units)
	report.TotalDevelopments = len(devs)
	if len(units) == 0 {
		return report
	}

	var total int
	for i := range units {
		u := &units[i]
		report.UnitsByRegion[u.Geo.Region]++
		report.UnitsByDistance[u.Geo.BeachDistance]++
		report.UnitsByType[u.PropertyType]++

		if u.Price == nil {
			report.OnRequestUnits++
			continue
		}
		p := *u.Price
		if report.PricedUnits == 0 || p < report.MinPrice {
			report.MinPrice = p
		}
		if report.PricedUnits == 0 || p > report.MaxPrice {
			report.MaxPrice = p
			report.MostExpensive = u
		}
		report.PricedUnits++
		total += p
	}
	if report.PricedUnits > 0 {
		report.AveragePrice = total / report.PricedUnits
	}

	// 5 cheapest developments with a known starting price
	var priced []models.Development
	for _, d := range devs {
		if d.PriceFrom != nil {
			priced = append(priced, d)
		}
	}
	sort.SliceStable(priced, func(i, j int) bool { return *priced[i].PriceFrom < *priced[j].PriceFrom })
	if len(priced) > 5 {
		priced = priced[:5]
	}
	report.CheapestDevs = priced

	return report
}

// Print writes the run counters and catalog insights to w.
func (s *InsightService) Print(w io.Writer, r *models.InsightReport, run *models.RunReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🏖  PROPERTY CATALOG BUILD\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	if run != nil {
		fmt.Fprintf(w, "\033[1;33m  Run\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  Feeds            : \033[1m%d\033[0m (%d failed, %d stale)\n", run.Feeds, len(run.Failures), len(run.StaleFeeds))
		fmt.Fprintf(w, "  Raw records      : \033[1m%d\033[0m\n", run.RawRecords)
		fmt.Fprintf(w, "  Parsed / dropped : \033[1m%d\033[0m / \033[1m%d\033[0m\n", run.Parsed, run.Dropped)
		fmt.Fprintf(w, "  Merged away      : \033[1m%d\033[0m\n", run.Merged)
		fmt.Fprintf(w, "  No beach tag     : \033[1m%d\033[0m\n", run.Unclassified)
		fmt.Fprintf(w, "  Duration         : %s\n", run.Duration.Round(time.Millisecond))
		for _, f := range run.Failures {
			fmt.Fprintf(w, "  \033[1;31m✗\033[0m %-16s %s (%d attempts)\n", truncate(f.FeedID, 16), truncate(f.Reason, 40), f.Attempts)
		}
		if len(run.DropReasons) > 0 {
			reasons := make([]string, 0, len(run.DropReasons))
			for reason := range run.DropReasons {
				reasons = append(reasons, reason)
			}
			sort.Strings(reasons)
			for _, reason := range reasons {
				fmt.Fprintf(w, "  dropped: %-38s %d\n", truncate(reason, 38), run.DropReasons[reason])
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Units        : \033[1m%d\033[0m (%d on request)\n", r.TotalUnits, r.OnRequestUnits)
	fmt.Fprintf(w, "  Developments : \033[1m%d\033[0m\n", r.TotalDevelopments)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedUnits > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m€%s\033[0m\n", euros(r.AveragePrice))
		fmt.Fprintf(w, "  Minimum price : \033[1;32m€%s\033[0m\n", euros(r.MinPrice))
		fmt.Fprintf(w, "  Maximum price : \033[1;32m€%s\033[0m\n", euros(r.MaxPrice))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Unit\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Title, 50))
		fmt.Fprintf(w, "  Town  : %s\n", r.MostExpensive.Town)
		fmt.Fprintf(w, "  Price : \033[1;31m€%s\033[0m\n", euros(*r.MostExpensive.Price))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Cheapest Developments\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.CheapestDevs) == 0 {
		fmt.Fprintf(w, "  No priced developments\n")
	} else {
		for i, d := range r.CheapestDevs {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-32s from \033[1;32m€%s\033[0m\n", i+1, truncate(d.Name, 30), euros(*d.PriceFrom))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Units by Region\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	printBars(w, toCounts(r.UnitsByRegion))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Units by Beach Distance\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	printBars(w, toCounts(r.UnitsByDistance))

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

type labelCount struct {
	label string
	count int
}

func toCounts[K ~string](m map[K]int) []labelCount {
	out := make([]labelCount, 0, len(m))
	for k, v := range m {
		out = append(out, labelCount{string(k), v})
	}
	// count descending, label for ties
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].label < out[j].label
	})
	return out
}

func printBars(w io.Writer, counts []labelCount) {
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n")
		return
	}
	max := counts[0].count
	for _, lc := range counts {
		width := 30 * lc.count / max
		if width == 0 {
			width = 1
		}
		fmt.Fprintf(w, "  %-14s %s (%d)\n", truncate(lc.label, 14), strings.Repeat("█", width), lc.count)
	}
}

// euros formats n with thousand separators: 295000 -> "295,000".
func euros(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
