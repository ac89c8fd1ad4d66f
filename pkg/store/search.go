package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
)

// SearchRepo provides full-text search over meetings, items, and matters.
type SearchRepo struct{}

// NewSearchRepo creates a SearchRepo.
func NewSearchRepo() *SearchRepo { return &SearchRepo{} }

// SearchQuery narrows a search. Text runs through Postgres full-text search;
// the remaining fields are filters. A zipcode query resolves to its city.
type SearchQuery struct {
	Text    string
	Topic   string
	Banana  string
	State   string
	Zipcode string
	Limit   int
	Offset  int
}

// MeetingHit is one search result with its ranking score.
type MeetingHit struct {
	Meeting models.Meeting `json:"meeting"`
	Rank    float64        `json:"rank"`
}

// CityHit is a city-level aggregate returned for city/state searches.
type CityHit struct {
	City         models.City `json:"city"`
	MeetingCount int         `json:"meeting_count"`
}

// SearchMeetings runs full-text search over meeting titles and summaries,
// intersected with the query's filters, ranked by ts_rank then recency.
func (r *SearchRepo) SearchMeetings(ctx context.Context, q database.Querier, query SearchQuery) ([]MeetingHit, error) {
	limit := query.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	where := []string{"1=1"}
	var args []any

	if query.Text != "" {
		args = append(args, query.Text)
		n := strconv.Itoa(len(args))
		where = append(where,
			`to_tsvector('english', m.title || ' ' || COALESCE(m.summary, '')) @@ plainto_tsquery('english', $`+n+`)`)
	}
	if query.Topic != "" {
		args = append(args, query.Topic)
		where = append(where,
			`EXISTS (SELECT 1 FROM meeting_topics mt WHERE mt.meeting_id = m.id AND mt.topic = $`+strconv.Itoa(len(args))+`)`)
	}
	if query.Banana != "" {
		args = append(args, query.Banana)
		where = append(where, `m.banana = $`+strconv.Itoa(len(args)))
	}
	if query.State != "" {
		args = append(args, query.State)
		where = append(where,
			`m.banana IN (SELECT banana FROM cities WHERE state = $`+strconv.Itoa(len(args))+`)`)
	}
	if query.Zipcode != "" {
		args = append(args, query.Zipcode)
		where = append(where,
			`m.banana IN (SELECT banana FROM zipcodes WHERE zipcode = $`+strconv.Itoa(len(args))+`)`)
	}

	rankExpr := `0`
	if query.Text != "" {
		rankExpr = `ts_rank(to_tsvector('english', m.title || ' ' || COALESCE(m.summary, '')), plainto_tsquery('english', $1))`
	}

	args = append(args, limit)
	limitArg := strconv.Itoa(len(args))
	args = append(args, query.Offset)
	offsetArg := strconv.Itoa(len(args))

	sql := `SELECT ` + meetingColumns + `, ` + rankExpr + ` AS rank
		FROM meetings m
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY rank DESC, m.date DESC NULLS LAST
		LIMIT $` + limitArg + ` OFFSET $` + offsetArg

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbErr("search meetings", err)
	}
	defer rows.Close()

	var hits []MeetingHit
	for rows.Next() {
		var (
			hit  MeetingHit
			m    *models.Meeting
			rank float64
		)
		m, rank, err = scanMeetingWithRank(rows)
		if err != nil {
			return nil, dbErr("scan search hit", err)
		}
		hit.Meeting = *m
		hit.Rank = rank
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("search meetings", err)
	}
	return hits, nil
}

// SearchCities resolves a free-text query to cities with meeting counts.
// Matches city name, full state name or code, and zipcode.
func (r *SearchRepo) SearchCities(ctx context.Context, q database.Querier, text string, limit int) ([]CityHit, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	state := stateCode(text)

	rows, err := q.Query(ctx, `
		SELECT `+cityColumns+`,
		       (SELECT COUNT(*) FROM meetings m WHERE m.banana = cities.banana) AS meeting_count
		FROM cities
		WHERE lower(name) LIKE lower($1)
		   OR state = $2
		   OR banana IN (SELECT banana FROM zipcodes WHERE zipcode = $3)
		ORDER BY banana
		LIMIT $4`,
		"%"+text+"%", state, text, limit)
	if err != nil {
		return nil, dbErr("search cities", err)
	}
	defer rows.Close()

	var hits []CityHit
	for rows.Next() {
		var (
			c     models.City
			count int
		)
		err := rows.Scan(&c.Banana, &c.Name, &c.State, &c.Vendor, &c.Slug, &c.County,
			&c.Status, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt, &count)
		if err != nil {
			return nil, dbErr("scan city hit", err)
		}
		hits = append(hits, CityHit{City: c, MeetingCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("search cities", err)
	}
	return hits, nil
}

// MatterHit is one matter search result.
type MatterHit struct {
	Matter models.Matter `json:"matter"`
	Rank   float64       `json:"rank"`
}

// SearchMatters runs full-text search over matter titles and canonical
// summaries.
func (r *SearchRepo) SearchMatters(ctx context.Context, q database.Querier, text, banana string, limit int) ([]MatterHit, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	where := `to_tsvector('english', title || ' ' || COALESCE(canonical_summary, '')) @@ plainto_tsquery('english', $1)`
	args := []any{text}
	if banana != "" {
		args = append(args, banana)
		where += ` AND banana = $2`
	}
	args = append(args, limit)

	rows, err := q.Query(ctx, `
		SELECT `+matterColumns+`,
		       ts_rank(to_tsvector('english', title || ' ' || COALESCE(canonical_summary, '')),
		               plainto_tsquery('english', $1)) AS rank
		FROM city_matters
		WHERE `+where+`
		ORDER BY rank DESC, last_seen DESC
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, dbErr("search matters", err)
	}
	defer rows.Close()

	var hits []MatterHit
	for rows.Next() {
		var (
			m      models.Matter
			status string
			rank   float64
		)
		err := rows.Scan(&m.ID, &m.Banana, &m.MatterFile, &m.MatterID, &m.Title,
			&m.CanonicalSummary, &m.AttachmentHash,
			&m.FirstSeen, &m.LastSeen, &m.AppearanceCount, &status, &m.FinalVoteDate,
			&rank)
		if err != nil {
			return nil, dbErr("scan matter hit", err)
		}
		m.Status = models.MatterDisposition(status)
		hits = append(hits, MatterHit{Matter: m, Rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("search matters", err)
	}
	return hits, nil
}

func scanMeetingWithRank(row rowScanner) (*models.Meeting, float64, error) {
	var (
		m                 models.Meeting
		packetJSON        []byte
		participationJSON []byte
		method            string
		rank              float64
	)
	err := row.Scan(&m.ID, &m.Banana, &m.Title, &m.Date, &m.AgendaURL, &packetJSON,
		&m.Summary, &participationJSON, &m.Status, &m.ProcessingStatus,
		&method, &m.ProcessingTimeMS, &m.VendorUpdatedAt, &m.CreatedAt, &m.UpdatedAt,
		&m.HasItems, &rank)
	if err != nil {
		return nil, 0, err
	}
	m.ProcessingMethod = models.ProcessingMethod(method)
	return &m, rank, nil
}

// stateCode maps common full state names to their code; already-short input
// passes through uppercased.
func stateCode(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	if code, ok := stateNames[strings.ToLower(s)]; ok {
		return code
	}
	return ""
}

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY",
}
