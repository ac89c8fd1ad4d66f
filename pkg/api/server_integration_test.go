package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/engagic/pkg/api"
	"github.com/engagic/engagic/pkg/conductor"
	"github.com/engagic/engagic/pkg/config"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/queue"
	"github.com/engagic/engagic/pkg/store"
	testdb "github.com/engagic/engagic/test/database"
)

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	pool := testdb.NewTestPool(t)
	ctx := context.Background()

	cityRepo := store.NewCityRepo()
	meetingRepo := store.NewMeetingRepo()
	itemRepo := store.NewItemRepo()
	matterRepo := store.NewMatterRepo()
	queueRepo := store.NewQueueRepo(3)
	searchRepo := store.NewSearchRepo()

	require.NoError(t, cityRepo.AddCity(ctx, pool, &models.City{
		Banana: "paloaltoCA", Name: "Palo Alto", State: "CA",
		Vendor: models.VendorPrimeGov, Slug: "cityofpaloalto",
		Zipcodes: []models.Zipcode{{Banana: "paloaltoCA", Zipcode: "94301", IsPrimary: true}},
	}))

	date := time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)
	_, err := meetingRepo.StoreMeeting(ctx, pool, &models.Meeting{
		ID: "paloaltoCA_1", Banana: "paloaltoCA", Title: "City Council Regular Meeting",
		Date: &date, AgendaURL: "https://paloalto.example/agenda/1",
	})
	require.NoError(t, err)
	require.NoError(t, meetingRepo.UpdateMeetingSummary(ctx, pool, "paloaltoCA_1",
		"## Council votes on housing element", []string{"housing"}))

	promReg := prometheus.NewRegistry()
	metrics := queue.NewMetrics(promReg)
	cfg := &config.Config{SyncInterval: 24 * time.Hour, RetrySweepInterval: time.Hour}

	fetcherPool := queue.NewPool("fetcher", pool, queueRepo, nil, 0, time.Minute, time.Second, metrics)
	processorPool := queue.NewPool("processor", pool, queueRepo, nil, 0, time.Minute, time.Second, metrics)
	sweeper := queue.NewSweeper(pool, queueRepo, time.Minute)
	cond := conductor.New(cfg, pool, cityRepo, queueRepo, matterRepo, fetcherPool, processorPool, sweeper, metrics)

	return api.NewServer(pool, cityRepo, meetingRepo, itemRepo, searchRepo, cond, promReg)
}

func TestServer_Endpoints(t *testing.T) {
	server := newTestServer(t)

	get := func(t *testing.T, path string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := get(t, "/health")
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("meeting by id", func(t *testing.T) {
		rec := get(t, "/api/meetings/paloaltoCA_1")
		require.Equal(t, http.StatusOK, rec.Code)

		var m models.Meeting
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		assert.Equal(t, "City Council Regular Meeting", m.Title)
		assert.Equal(t, []string{"housing"}, m.Topics)
		assert.False(t, m.HasItems)
	})

	t.Run("missing meeting is 404", func(t *testing.T) {
		rec := get(t, "/api/meetings/nowhereXX_9")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("city meetings include sync marker", func(t *testing.T) {
		rec := get(t, "/api/cities/paloaltoCA/meetings")
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Meetings []models.Meeting `json:"meetings"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Meetings, 1)
	})

	t.Run("search by zipcode", func(t *testing.T) {
		rec := get(t, "/api/search?q=94301")
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Cities []store.CityHit `json:"cities"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Cities, 1)
		assert.Equal(t, "paloaltoCA", body.Cities[0].City.Banana)
	})

	t.Run("search requires a query", func(t *testing.T) {
		rec := get(t, "/api/search")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("metrics endpoint serves prometheus text", func(t *testing.T) {
		rec := get(t, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "engagic_llm_calls_total")
	})
}
