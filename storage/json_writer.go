package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"costa-catalog/catalog"
)

// JSONWriter writes the full catalog export to a single JSON file, replaced
// atomically on each run.
type JSONWriter struct {
	path string
}

func NewJSONWriter(path string) *JSONWriter {
	return &JSONWriter{path: path}
}

func (w *JSONWriter) Write(ctx context.Context, cat *catalog.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cat.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("json: marshal catalog: %w", err)
	}
	if err := writeFileAtomic(w.path, data); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

func (w *JSONWriter) Close() error { return nil }

// ReadCatalogJSON loads a catalog written by JSONWriter. A missing file
// yields an error wrapping fs.ErrNotExist.
func ReadCatalogJSON(path string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("json: read %q: %w", path, err)
	}
	var e catalog.Export
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("json: decode %q: %w", path, err)
	}
	return catalog.FromExport(e), nil
}
