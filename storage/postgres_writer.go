package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"costa-catalog/catalog"
	"costa-catalog/models"
)

const batchSize = 50

// PostgresWriter mirrors the catalog into PostgreSQL. Each Write replaces
// the previous catalog in one transaction.
type PostgresWriter struct {
	db *sqlx.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS properties (
			global_reference UUID PRIMARY KEY,
			title            TEXT    NOT NULL,
			property_type    VARCHAR(20) NOT NULL,
			development      TEXT    NOT NULL DEFAULT '',
			builder          TEXT    NOT NULL DEFAULT '',
			town             TEXT    NOT NULL,
			zone             TEXT    NOT NULL DEFAULT '',
			region           VARCHAR(20) NOT NULL,
			beach_name       TEXT,
			beach_distance   VARCHAR(20) NOT NULL,
			price            INTEGER,
			bedrooms         INTEGER,
			bathrooms        INTEGER,
			built_area       INTEGER,
			plot_size        INTEGER,
			floor            INTEGER,
			features         TEXT[]  NOT NULL DEFAULT '{}',
			images           TEXT[]  NOT NULL DEFAULT '{}',
			sources          TEXT[]  NOT NULL DEFAULT '{}',
			new_build        BOOLEAN NOT NULL DEFAULT FALSE,
			stale            BOOLEAN NOT NULL DEFAULT FALSE,
			last_fetched     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_properties_town   ON properties(town);
		CREATE INDEX IF NOT EXISTS idx_properties_type   ON properties(property_type);
		CREATE INDEX IF NOT EXISTS idx_properties_region ON properties(region);
		CREATE INDEX IF NOT EXISTS idx_properties_price  ON properties(price);

		CREATE TABLE IF NOT EXISTS developments (
			slug           TEXT PRIMARY KEY,
			name           TEXT    NOT NULL,
			builder        TEXT    NOT NULL DEFAULT '',
			town           TEXT    NOT NULL,
			zone           TEXT    NOT NULL DEFAULT '',
			region         VARCHAR(20) NOT NULL,
			beach_name     TEXT,
			beach_distance VARCHAR(20) NOT NULL,
			units          INTEGER NOT NULL,
			price_from     INTEGER,
			price_max      INTEGER,
			bedrooms_min   INTEGER,
			bedrooms_max   INTEGER,
			property_types TEXT[]  NOT NULL DEFAULT '{}',
			features       TEXT[]  NOT NULL DEFAULT '{}',
			main_image     TEXT    NOT NULL DEFAULT '',
			stale          BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS builders (
			slug              TEXT PRIMARY KEY,
			name              TEXT    NOT NULL,
			development_count INTEGER NOT NULL,
			total_units       INTEGER NOT NULL,
			price_min         INTEGER,
			price_max         INTEGER,
			towns             TEXT[]  NOT NULL DEFAULT '{}',
			regions           TEXT[]  NOT NULL DEFAULT '{}',
			developments      TEXT[]  NOT NULL DEFAULT '{}'
		);
	`)
	return err
}

type propertyRow struct {
	GlobalReference string         `db:"global_reference"`
	Title           string         `db:"title"`
	PropertyType    string         `db:"property_type"`
	Development     string         `db:"development"`
	Builder         string         `db:"builder"`
	Town            string         `db:"town"`
	Zone            string         `db:"zone"`
	Region          string         `db:"region"`
	BeachName       *string        `db:"beach_name"`
	BeachDistance   string         `db:"beach_distance"`
	Price           *int           `db:"price"`
	Bedrooms        *int           `db:"bedrooms"`
	Bathrooms       *int           `db:"bathrooms"`
	BuiltArea       *int           `db:"built_area"`
	PlotSize        *int           `db:"plot_size"`
	Floor           *int           `db:"floor"`
	Features        pq.StringArray `db:"features"`
	Images          pq.StringArray `db:"images"`
	Sources         pq.StringArray `db:"sources"`
	NewBuild        bool           `db:"new_build"`
	Stale           bool           `db:"stale"`
	LastFetched     time.Time      `db:"last_fetched"`
}

type developmentRow struct {
	Slug          string         `db:"slug"`
	Name          string         `db:"name"`
	Builder       string         `db:"builder"`
	Town          string         `db:"town"`
	Zone          string         `db:"zone"`
	Region        string         `db:"region"`
	BeachName     *string        `db:"beach_name"`
	BeachDistance string         `db:"beach_distance"`
	Units         int            `db:"units"`
	PriceFrom     *int           `db:"price_from"`
	PriceMax      *int           `db:"price_max"`
	BedroomsMin   *int           `db:"bedrooms_min"`
	BedroomsMax   *int           `db:"bedrooms_max"`
	PropertyTypes pq.StringArray `db:"property_types"`
	Features      pq.StringArray `db:"features"`
	MainImage     string         `db:"main_image"`
	Stale         bool           `db:"stale"`
}

type builderRow struct {
	Slug             string         `db:"slug"`
	Name             string         `db:"name"`
	DevelopmentCount int            `db:"development_count"`
	TotalUnits       int            `db:"total_units"`
	PriceMin         *int           `db:"price_min"`
	PriceMax         *int           `db:"price_max"`
	Towns            pq.StringArray `db:"towns"`
	Regions          pq.StringArray `db:"regions"`
	Developments     pq.StringArray `db:"developments"`
}

const (
	insertProperty = `INSERT INTO properties (global_reference, title, property_type, development, builder,
		town, zone, region, beach_name, beach_distance, price, bedrooms, bathrooms, built_area, plot_size,
		floor, features, images, sources, new_build, stale, last_fetched)
		VALUES (:global_reference, :title, :property_type, :development, :builder, :town, :zone, :region,
		:beach_name, :beach_distance, :price, :bedrooms, :bathrooms, :built_area, :plot_size, :floor,
		:features, :images, :sources, :new_build, :stale, :last_fetched)`

	insertDevelopment = `INSERT INTO developments (slug, name, builder, town, zone, region, beach_name,
		beach_distance, units, price_from, price_max, bedrooms_min, bedrooms_max, property_types, features,
		main_image, stale)
		VALUES (:slug, :name, :builder, :town, :zone, :region, :beach_name, :beach_distance, :units,
		:price_from, :price_max, :bedrooms_min, :bedrooms_max, :property_types, :features, :main_image, :stale)`

	insertBuilder = `INSERT INTO builders (slug, name, development_count, total_units, price_min, price_max,
		towns, regions, developments)
		VALUES (:slug, :name, :development_count, :total_units, :price_min, :price_max, :towns, :regions,
		:developments)`
)

// Write replaces all three tables with the contents of cat. Readers of the
// database see either the previous catalog or the new one.
func (pw *PostgresWriter) Write(ctx context.Context, cat *catalog.Catalog) error {
	tx, err := pw.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"properties", "developments", "builders"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("postgres: clear %s: %w", table, err)
		}
	}

	if err := insertBatches(ctx, tx, insertProperty, propertyRows(cat.Properties())); err != nil {
		return fmt.Errorf("postgres: insert properties: %w", err)
	}
	if err := insertBatches(ctx, tx, insertDevelopment, developmentRows(cat.AllDevelopments())); err != nil {
		return fmt.Errorf("postgres: insert developments: %w", err)
	}
	if err := insertBatches(ctx, tx, insertBuilder, builderRows(cat.AllBuilders())); err != nil {
		return fmt.Errorf("postgres: insert builders: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func insertBatches[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := tx.NamedExecContext(ctx, query, rows[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// PropertyCount returns the number of stored units.
func (pw *PostgresWriter) PropertyCount(ctx context.Context) (int, error) {
	var n int
	if err := pw.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM properties"); err != nil {
		return 0, fmt.Errorf("postgres: count properties: %w", err)
	}
	return n, nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

func propertyRows(units []models.UnifiedProperty) []propertyRow {
	rows := make([]propertyRow, 0, len(units))
	for _, u := range units {
		sources := make(pq.StringArray, len(u.Sources))
		for i, s := range u.Sources {
			sources[i] = s.FeedID + ":" + s.Reference
		}
		rows = append(rows, propertyRow{
			GlobalReference: u.GlobalReference,
			Title:           u.Title,
			PropertyType:    string(u.PropertyType),
			Development:     u.Development,
			Builder:         u.Builder,
			Town:            u.Town,
			Zone:            u.Zone,
			Region:          string(u.Geo.Region),
			BeachName:       u.Geo.BeachName,
			BeachDistance:   string(u.Geo.BeachDistance),
			Price:           u.Price,
			Bedrooms:        u.Bedrooms,
			Bathrooms:       u.Bathrooms,
			BuiltArea:       u.BuiltArea,
			PlotSize:        u.PlotSize,
			Floor:           u.Floor,
			Features:        featureStrings(u.Features),
			Images:          append(pq.StringArray{}, u.Images...),
			Sources:         sources,
			NewBuild:        u.NewBuild,
			Stale:           u.Stale,
			LastFetched:     u.LastFetched,
		})
	}
	return rows
}

func developmentRows(devs []models.Development) []developmentRow {
	rows := make([]developmentRow, 0, len(devs))
	for _, d := range devs {
		types := make(pq.StringArray, len(d.PropertyTypes))
		for i, t := range d.PropertyTypes {
			types[i] = string(t)
		}
		rows = append(rows, developmentRow{
			Slug:          d.Slug,
			Name:          d.Name,
			Builder:       d.Builder,
			Town:          d.Town,
			Zone:          d.Zone,
			Region:        string(d.Geo.Region),
			BeachName:     d.Geo.BeachName,
			BeachDistance: string(d.Geo.BeachDistance),
			Units:         len(d.Units),
			PriceFrom:     d.PriceFrom,
			PriceMax:      d.PriceRange.Max,
			BedroomsMin:   d.BedroomRange.Min,
			BedroomsMax:   d.BedroomRange.Max,
			PropertyTypes: types,
			Features:      featureStrings(d.Features),
			MainImage:     d.MainImage,
			Stale:         d.Stale,
		})
	}
	return rows
}

func builderRows(builders []models.Builder) []builderRow {
	rows := make([]builderRow, 0, len(builders))
	for _, b := range builders {
		regions := make(pq.StringArray, len(b.Regions))
		for i, r := range b.Regions {
			regions[i] = string(r)
		}
		rows = append(rows, builderRow{
			Slug:             b.Slug,
			Name:             b.Name,
			DevelopmentCount: b.DevelopmentCount,
			TotalUnits:       b.TotalUnits,
			PriceMin:         b.PriceRange.Min,
			PriceMax:         b.PriceRange.Max,
			Towns:            append(pq.StringArray{}, b.Towns...),
			Regions:          regions,
			Developments:     append(pq.StringArray{}, b.Developments...),
		})
	}
	return rows
}

func featureStrings(fs []models.Feature) pq.StringArray {
	out := make(pq.StringArray, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}
