package store

import (
	"context"
	"strconv"
	"time"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
)

// CityRepo stores cities and their zipcodes.
type CityRepo struct{}

// NewCityRepo creates a CityRepo.
func NewCityRepo() *CityRepo { return &CityRepo{} }

const cityColumns = `banana, name, state, vendor, slug, COALESCE(county, ''), status, last_sync_at, created_at, updated_at`

// AddCity upserts a city row by banana and replaces its zipcodes.
func (r *CityRepo) AddCity(ctx context.Context, q database.Querier, city *models.City) error {
	if city.Banana == "" {
		return models.NewValidationError("banana", "required")
	}
	if !city.Vendor.Valid() {
		return models.NewValidationError("vendor", "unknown vendor "+string(city.Vendor))
	}
	if len(city.State) != 2 {
		return models.NewValidationError("state", "must be a two-letter code")
	}

	err := withRetry(ctx, func() error {
		_, err := q.Exec(ctx, `
			INSERT INTO cities (banana, name, state, vendor, slug, county, status)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
			ON CONFLICT (banana) DO UPDATE SET
				name = EXCLUDED.name,
				state = EXCLUDED.state,
				vendor = EXCLUDED.vendor,
				slug = EXCLUDED.slug,
				county = EXCLUDED.county,
				status = EXCLUDED.status,
				updated_at = now()`,
			city.Banana, city.Name, city.State, city.Vendor, city.Slug, city.County, statusOrActive(city.Status))
		return err
	})
	if err != nil {
		return dbErr("add city", err)
	}

	if city.Zipcodes != nil {
		if err := r.SetZipcodes(ctx, q, city.Banana, city.Zipcodes); err != nil {
			return err
		}
	}
	return nil
}

func statusOrActive(s models.CityStatus) models.CityStatus {
	if s == "" {
		return models.CityStatusActive
	}
	return s
}

// SetZipcodes replaces the zipcode rows for a city.
func (r *CityRepo) SetZipcodes(ctx context.Context, q database.Querier, banana string, zips []models.Zipcode) error {
	if _, err := q.Exec(ctx, `DELETE FROM zipcodes WHERE banana = $1`, banana); err != nil {
		return dbErr("clear zipcodes", err)
	}
	for _, z := range zips {
		_, err := q.Exec(ctx, `
			INSERT INTO zipcodes (banana, zipcode, is_primary)
			VALUES ($1, $2, $3)
			ON CONFLICT (banana, zipcode) DO UPDATE SET is_primary = EXCLUDED.is_primary`,
			banana, z.Zipcode, z.IsPrimary)
		if err != nil {
			return dbErr("set zipcode", err)
		}
	}
	return nil
}

// GetCityQuery selects the lookup key for GetCity. The most specific
// non-empty parameter wins: banana, then vendor+slug, then zipcode, then
// name+state.
type GetCityQuery struct {
	Banana  string
	Vendor  models.Vendor
	Slug    string
	Zipcode string
	Name    string
	State   string
}

// GetCity dispatches on the most specific parameter present in query.
func (r *CityRepo) GetCity(ctx context.Context, q database.Querier, query GetCityQuery) (*models.City, error) {
	switch {
	case query.Banana != "":
		return r.getCityWhere(ctx, q, `banana = $1`, query.Banana)
	case query.Slug != "" && query.Vendor != "":
		return r.getCityWhere(ctx, q, `vendor = $1 AND slug = $2`, string(query.Vendor), query.Slug)
	case query.Zipcode != "":
		return r.getCityWhere(ctx, q,
			`banana IN (SELECT banana FROM zipcodes WHERE zipcode = $1)`, query.Zipcode)
	case query.Name != "" && query.State != "":
		return r.getCityWhere(ctx, q, `lower(name) = lower($1) AND state = $2`, query.Name, query.State)
	}
	return nil, models.NewValidationError("query", "no lookup key supplied")
}

func (r *CityRepo) getCityWhere(ctx context.Context, q database.Querier, where string, args ...any) (*models.City, error) {
	row := q.QueryRow(ctx, `SELECT `+cityColumns+` FROM cities WHERE `+where+` LIMIT 1`, args...)
	city, err := scanCity(row)
	if err != nil {
		return nil, dbErr("get city", err)
	}

	rows, err := q.Query(ctx,
		`SELECT banana, zipcode, is_primary FROM zipcodes WHERE banana = $1 ORDER BY is_primary DESC, zipcode`,
		city.Banana)
	if err != nil {
		return nil, dbErr("get city zipcodes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var z models.Zipcode
		if err := rows.Scan(&z.Banana, &z.Zipcode, &z.IsPrimary); err != nil {
			return nil, dbErr("scan zipcode", err)
		}
		city.Zipcodes = append(city.Zipcodes, z)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("get city zipcodes", err)
	}
	return city, nil
}

// CityFilters narrows GetCities.
type CityFilters struct {
	State  string
	Vendor models.Vendor
	Status models.CityStatus
}

// GetCities lists cities matching the filters, ordered by banana.
func (r *CityRepo) GetCities(ctx context.Context, q database.Querier, f CityFilters) ([]models.City, error) {
	sql := `SELECT ` + cityColumns + ` FROM cities WHERE 1=1`
	var args []any
	if f.State != "" {
		args = append(args, f.State)
		sql += ` AND state = $` + strconv.Itoa(len(args))
	}
	if f.Vendor != "" {
		args = append(args, string(f.Vendor))
		sql += ` AND vendor = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		sql += ` AND status = $` + strconv.Itoa(len(args))
	}
	sql += ` ORDER BY banana`

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbErr("get cities", err)
	}
	defer rows.Close()

	var cities []models.City
	for rows.Next() {
		city, err := scanCity(rows)
		if err != nil {
			return nil, dbErr("scan city", err)
		}
		cities = append(cities, *city)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("get cities", err)
	}
	return cities, nil
}

// StaleCities returns active cities whose last successful sync is older than
// the freshness threshold (or who have never synced).
func (r *CityRepo) StaleCities(ctx context.Context, q database.Querier, olderThan time.Time) ([]models.City, error) {
	rows, err := q.Query(ctx, `
		SELECT `+cityColumns+` FROM cities
		WHERE status = 'active' AND (last_sync_at IS NULL OR last_sync_at < $1)
		ORDER BY last_sync_at ASC NULLS FIRST`, olderThan)
	if err != nil {
		return nil, dbErr("stale cities", err)
	}
	defer rows.Close()

	var cities []models.City
	for rows.Next() {
		city, err := scanCity(rows)
		if err != nil {
			return nil, dbErr("scan city", err)
		}
		cities = append(cities, *city)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("stale cities", err)
	}
	return cities, nil
}

// TouchLastSync records a successful sync for a city.
func (r *CityRepo) TouchLastSync(ctx context.Context, q database.Querier, banana string, at time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE cities SET last_sync_at = $2, updated_at = now() WHERE banana = $1`, banana, at)
	if err != nil {
		return dbErr("touch last sync", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCity(row rowScanner) (*models.City, error) {
	var c models.City
	err := row.Scan(&c.Banana, &c.Name, &c.State, &c.Vendor, &c.Slug, &c.County,
		&c.Status, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
