package cities

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/store"
)

// SeedRecord is one row of the city seed file.
type SeedRecord struct {
	Name     string   `json:"name"`
	State    string   `json:"state"`
	Vendor   string   `json:"vendor"`
	Slug     string   `json:"slug"`
	County   string   `json:"county,omitempty"`
	Zipcodes []string `json:"zipcodes,omitempty"`
}

// Import upserts the seed file's cities. Format is chosen by extension:
// .json or .csv. Returns the number of cities imported; individual bad rows
// are skipped with a warning.
func Import(ctx context.Context, pool *pgxpool.Pool, repo *store.CityRepo, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []SeedRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		records, err = parseJSON(f)
	case ".csv":
		records, err = parseCSV(f)
	default:
		return 0, models.NewValidationError("path", "seed file must be .json or .csv")
	}
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, rec := range records {
		city, err := toCity(rec)
		if err != nil {
			slog.Warn("skipping seed row", "name", rec.Name, "state", rec.State, "error", err)
			continue
		}
		err = database.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return repo.AddCity(ctx, tx, city)
		})
		if err != nil {
			slog.Warn("failed to import city", "banana", city.Banana, "error", err)
			continue
		}
		imported++
	}
	return imported, nil
}

func toCity(rec SeedRecord) (*models.City, error) {
	banana, err := Banana(rec.Name, rec.State)
	if err != nil {
		return nil, err
	}
	vendor := models.Vendor(strings.ToLower(strings.TrimSpace(rec.Vendor)))
	if !vendor.Valid() {
		return nil, models.NewValidationError("vendor", "unknown vendor "+rec.Vendor)
	}
	if rec.Slug == "" {
		return nil, models.NewValidationError("slug", "required")
	}

	city := &models.City{
		Banana: banana,
		Name:   strings.TrimSpace(rec.Name),
		State:  strings.ToUpper(strings.TrimSpace(rec.State)),
		Vendor: vendor,
		Slug:   rec.Slug,
		County: rec.County,
		Status: models.CityStatusActive,
	}
	for i, zip := range rec.Zipcodes {
		zip = strings.TrimSpace(zip)
		if zip == "" {
			continue
		}
		city.Zipcodes = append(city.Zipcodes, models.Zipcode{
			Banana:    banana,
			Zipcode:   zip,
			IsPrimary: i == 0,
		})
	}
	return city, nil
}

func parseJSON(r io.Reader) ([]SeedRecord, error) {
	var records []SeedRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON seed: %w", err)
	}
	return records, nil
}

// parseCSV expects a header row: name,state,vendor,slug,county,zipcodes with
// zipcodes semicolon-separated.
func parseCSV(r io.Reader) ([]SeedRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV seed: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV seed has no data rows")
	}

	col := make(map[string]int)
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "state", "vendor", "slug"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("CSV seed is missing the %q column", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]SeedRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := SeedRecord{
			Name:   field(row, "name"),
			State:  field(row, "state"),
			Vendor: field(row, "vendor"),
			Slug:   field(row, "slug"),
			County: field(row, "county"),
		}
		if zips := field(row, "zipcodes"); zips != "" {
			for _, z := range strings.Split(zips, ";") {
				if z = strings.TrimSpace(z); z != "" {
					rec.Zipcodes = append(rec.Zipcodes, z)
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
