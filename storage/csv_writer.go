package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"costa-catalog/catalog"
	"costa-catalog/models"
)

var csvHeader = []string{
	"global_reference", "title", "property_type", "development", "builder", "town", "zone",
	"region", "beach", "beach_distance", "price", "bedrooms", "bathrooms", "built_area",
	"plot_size", "floor", "features", "images", "sources", "new_build", "stale", "last_fetched",
}

// CSVWriter writes unified properties to a CSV file, one row per unit.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends every unit of cat.
func (c *CSVWriter) Write(ctx context.Context, cat *catalog.Catalog) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, u := range cat.Properties() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.writer.Write(csvRow(u)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}

func csvRow(u models.UnifiedProperty) []string {
	beach := ""
	if u.Geo.BeachName != nil {
		beach = *u.Geo.BeachName
	}
	features := make([]string, len(u.Features))
	for i, f := range u.Features {
		features[i] = string(f)
	}
	sources := make([]string, len(u.Sources))
	for i, s := range u.Sources {
		sources[i] = s.FeedID + ":" + s.Reference
	}
	return []string{
		u.GlobalReference,
		u.Title,
		string(u.PropertyType),
		u.Development,
		u.Builder,
		u.Town,
		u.Zone,
		string(u.Geo.Region),
		beach,
		string(u.Geo.BeachDistance),
		optInt(u.Price),
		optInt(u.Bedrooms),
		optInt(u.Bathrooms),
		optInt(u.BuiltArea),
		optInt(u.PlotSize),
		optInt(u.Floor),
		strings.Join(features, "|"),
		strings.Join(u.Images, "|"),
		strings.Join(sources, "|"),
		strconv.FormatBool(u.NewBuild),
		strconv.FormatBool(u.Stale),
		u.LastFetched.Format(time.RFC3339),
	}
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
