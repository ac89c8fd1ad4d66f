package ingest_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/engagic/pkg/extract"
	"github.com/engagic/engagic/pkg/ingest"
	"github.com/engagic/engagic/pkg/llm"
	"github.com/engagic/engagic/pkg/matter"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/queue"
	"github.com/engagic/engagic/pkg/store"
	"github.com/engagic/engagic/pkg/topics"
	"github.com/engagic/engagic/pkg/vendors"
	testdb "github.com/engagic/engagic/test/database"
)

// fakeAdapter serves a scripted set of meetings for one vendor.
type fakeAdapter struct {
	vendor   models.Vendor
	meetings []models.RawMeeting
}

func (f *fakeAdapter) Name() models.Vendor { return f.vendor }
func (f *fakeAdapter) SupportsItems() bool { return true }
func (f *fakeAdapter) SupportsVotes() bool { return true }
func (f *fakeAdapter) FetchMeetings(ctx context.Context, slug string, daysBack, daysForward int) ([]models.RawMeeting, error) {
	return f.meetings, nil
}

// fakeExtractor returns canned text per URL.
type fakeExtractor struct {
	texts map[string]string
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (*extract.Result, error) {
	text, ok := f.texts[url]
	if !ok {
		return nil, &extract.Error{URL: url, Err: fmt.Errorf("no fixture")}
	}
	return &extract.Result{Text: text, Quality: models.QualityGood, Source: "pdf"}, nil
}

// fakeSummarizer counts LLM calls and answers deterministically.
type fakeSummarizer struct {
	calls atomic.Int32
}

func (f *fakeSummarizer) Summarize(ctx context.Context, req llm.Request) (*llm.Result, error) {
	n := f.calls.Add(1)
	return &llm.Result{
		SummaryMarkdown: fmt.Sprintf("summary #%d for %s", n, req.Title),
		Topics:          []string{"zoning"},
		Confidence:      models.ConfidenceHigh,
	}, nil
}

func (f *fakeSummarizer) SummarizeBatch(ctx context.Context, reqs []llm.Request) ([]llm.Result, error) {
	results := make([]llm.Result, len(reqs))
	for i, req := range reqs {
		r, _ := f.Summarize(ctx, req)
		results[i] = *r
	}
	return results, nil
}

type pipeline struct {
	fetcher    *ingest.Fetcher
	processor  *ingest.Processor
	jobs       *store.QueueRepo
	meetings   *store.MeetingRepo
	items      *store.ItemRepo
	matters    *store.MatterRepo
	summarizer *fakeSummarizer
	adapter    *fakeAdapter
}

func buildPipeline(t *testing.T, texts map[string]string) (*pipeline, *pgxpool.Pool) {
	t.Helper()
	pool := testdb.NewTestPool(t)

	cityRepo := store.NewCityRepo()
	meetingRepo := store.NewMeetingRepo()
	itemRepo := store.NewItemRepo()
	matterRepo := store.NewMatterRepo()
	queueRepo := store.NewQueueRepo(3)
	cacheRepo := store.NewCacheRepo()

	tracker := matter.NewTracker(matterRepo)
	normalizer := topics.NewNormalizer()
	metrics := queue.NewMetrics(prometheus.NewRegistry())
	summarizer := &fakeSummarizer{}
	adapter := &fakeAdapter{vendor: models.VendorLegistar}

	registry := vendors.NewRegistry()
	registry.Register(adapter)
	limiter := vendors.NewRateLimiter(time.Millisecond)

	fetcher := ingest.NewFetcher(pool, cityRepo, meetingRepo, itemRepo, queueRepo, tracker, registry, limiter)
	processor := ingest.NewProcessor(pool, meetingRepo, itemRepo, cacheRepo, tracker,
		&fakeExtractor{texts: texts}, summarizer, normalizer, metrics)

	ctx := context.Background()
	require.NoError(t, cityRepo.AddCity(ctx, pool, &models.City{
		Banana: "nashvilleTN", Name: "Nashville", State: "TN",
		Vendor: models.VendorLegistar, Slug: "nashville",
	}))

	return &pipeline{
		fetcher:    fetcher,
		processor:  processor,
		jobs:       queueRepo,
		meetings:   meetingRepo,
		items:      itemRepo,
		matters:    matterRepo,
		summarizer: summarizer,
		adapter:    adapter,
	}, pool
}

// run drains the queue until empty.
func (p *pipeline) run(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	for {
		job, err := p.jobs.GetNextJob(ctx, pool)
		if err != nil {
			break
		}
		var execErr error
		switch job.Kind {
		case models.JobSyncCity:
			execErr = p.fetcher.Execute(ctx, job)
		default:
			execErr = p.processor.Execute(ctx, job)
		}
		require.NoError(t, execErr, "job %d (%s %s)", job.ID, job.Kind, job.Payload)
		require.NoError(t, p.jobs.MarkComplete(ctx, pool, job.ID))
	}
}

func meetingFixture(id string, date time.Time, itemTitle string, attachments []models.Attachment, votes []models.RawVote) models.RawMeeting {
	return models.RawMeeting{
		VendorMeetingID: id,
		Title:           "Metro Council " + id,
		Date:            &date,
		AgendaURL:       "https://nashville.legistar.com/m/" + id,
		Items: []models.RawAgendaItem{{
			Title:       itemTitle,
			Sequence:    1,
			MatterFile:  "BL2025-1098",
			Attachments: attachments,
			Votes:       votes,
		}},
	}
}

func TestPipeline_TwoReadingsShareOneSummary(t *testing.T) {
	attachA := []models.Attachment{{Name: "Ordinance", URL: "https://docs.example/A.pdf", Type: "pdf"}}
	texts := map[string]string{
		"https://docs.example/A.pdf": "An ordinance amending the zoning code for the downtown district.",
	}
	p, pool := buildPipeline(t, texts)
	ctx := context.Background()

	m1Date := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)
	m2Date := time.Date(2025, 5, 15, 18, 0, 0, 0, time.UTC)

	// first reading
	p.adapter.meetings = []models.RawMeeting{
		meetingFixture("M1", m1Date, "FIRST READING: An ordinance amending the zoning code", attachA, nil),
	}
	require.NoError(t, p.jobs.Enqueue(ctx, pool, models.JobSyncCity, "nashvilleTN", store.SyncPriority))
	p.run(t, pool)

	// second reading, identical attachment
	p.adapter.meetings = []models.RawMeeting{
		meetingFixture("M2", m2Date, "SECOND READING: An ordinance amending the zoning code", attachA, nil),
	}
	require.NoError(t, p.jobs.Enqueue(ctx, pool, models.JobSyncCity, "nashvilleTN", store.SyncPriority))
	p.run(t, pool)

	matterID := matter.GenerateID("nashvilleTN", "BL2025-1098", "", "")
	m, err := p.matters.GetMatter(ctx, pool, matterID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.AppearanceCount, "one matter row with two appearances")
	assert.NotEmpty(t, m.CanonicalSummary)

	items1, err := p.items.GetAgendaItems(ctx, pool, "nashvilleTN_M1")
	require.NoError(t, err)
	items2, err := p.items.GetAgendaItems(ctx, pool, "nashvilleTN_M2")
	require.NoError(t, err)
	require.Len(t, items1, 1)
	require.Len(t, items2, 1)
	assert.Equal(t, items1[0].Summary, items2[0].Summary, "second reading adopts the canonical summary")
	assert.Equal(t, matterID, items1[0].MatterID)
	assert.Equal(t, matterID, items2[0].MatterID)

	assert.Equal(t, int32(1), p.summarizer.calls.Load(), "the summariser ran once for two readings")
}

func TestPipeline_AttachmentChangeTriggersReprocess(t *testing.T) {
	attachA := []models.Attachment{{Name: "Ordinance", URL: "https://docs.example/A.pdf", Type: "pdf"}}
	attachA2 := []models.Attachment{{Name: "Ordinance v2", URL: "https://docs.example/A2.pdf", Type: "pdf"}}
	texts := map[string]string{
		"https://docs.example/A.pdf":  "An ordinance amending the zoning code, first draft.",
		"https://docs.example/A2.pdf": "An ordinance amending the zoning code, amended with new parcel maps.",
	}
	p, pool := buildPipeline(t, texts)
	ctx := context.Background()

	p.adapter.meetings = []models.RawMeeting{
		meetingFixture("M1", time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC),
			"FIRST READING: An ordinance amending the zoning code", attachA, nil),
	}
	require.NoError(t, p.jobs.Enqueue(ctx, pool, models.JobSyncCity, "nashvilleTN", store.SyncPriority))
	p.run(t, pool)

	p.adapter.meetings = []models.RawMeeting{
		meetingFixture("M2", time.Date(2025, 5, 15, 18, 0, 0, 0, time.UTC),
			"SECOND READING: An ordinance amending the zoning code", attachA2, nil),
	}
	require.NoError(t, p.jobs.Enqueue(ctx, pool, models.JobSyncCity, "nashvilleTN", store.SyncPriority))
	p.run(t, pool)

	assert.Equal(t, int32(2), p.summarizer.calls.Load(), "changed attachments force a second call")

	matterID := matter.GenerateID("nashvilleTN", "BL2025-1098", "", "")
	m, err := p.matters.GetMatter(ctx, pool, matterID)
	require.NoError(t, err)
	assert.Equal(t, matter.AttachmentHash(attachA2), m.AttachmentHash,
		"canonical hash tracks the latest attachments")

	items1, err := p.items.GetAgendaItems(ctx, pool, "nashvilleTN_M1")
	require.NoError(t, err)
	items2, err := p.items.GetAgendaItems(ctx, pool, "nashvilleTN_M2")
	require.NoError(t, err)
	assert.NotEqual(t, items1[0].Summary, items2[0].Summary, "first reading keeps its original summary")
	assert.Equal(t, m.CanonicalSummary, items2[0].Summary, "canonical copy follows the reprocess")
}

func TestPipeline_CrossCityCollision(t *testing.T) {
	texts := map[string]string{
		"https://docs.example/n.pdf": "Nashville ordinance about transit funding.",
		"https://docs.example/m.pdf": "Memphis ordinance about park maintenance.",
	}
	p, pool := buildPipeline(t, texts)
	ctx := context.Background()

	cityRepo := store.NewCityRepo()
	require.NoError(t, cityRepo.AddCity(ctx, pool, &models.City{
		Banana: "memphisTN", Name: "Memphis", State: "TN",
		Vendor: models.VendorLegistar, Slug: "memphis",
	}))

	date := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	// nashville sync
	p.adapter.meetings = []models.RawMeeting{{
		VendorMeetingID: "N1", Title: "Nashville Council", Date: &date,
		AgendaURL: "https://nashville.example/n1",
		Items: []models.RawAgendaItem{{
			Title: "Transit funding ordinance", Sequence: 1, MatterFile: "2025-123",
			Attachments: []models.Attachment{{Name: "doc", URL: "https://docs.example/n.pdf", Type: "pdf"}},
		}},
	}}
	require.NoError(t, p.jobs.Enqueue(ctx, pool, models.JobSyncCity, "nashvilleTN", store.SyncPriority))
	p.run(t, pool)

	// memphis sync with the same matter_file
	p.adapter.meetings = []models.RawMeeting{{
		VendorMeetingID: "M1", Title: "Memphis Council", Date: &date,
		AgendaURL: "https://memphis.example/m1",
		Items: []models.RawAgendaItem{{
			Title: "Park maintenance ordinance", Sequence: 1, MatterFile: "2025-123",
			Attachments: []models.Attachment{{Name: "doc", URL: "https://docs.example/m.pdf", Type: "pdf"}},
		}},
	}}
	require.NoError(t, p.jobs.Enqueue(ctx, pool, models.JobSyncCity, "memphisTN", store.SyncPriority))
	p.run(t, pool)

	nashID := matter.GenerateID("nashvilleTN", "2025-123", "", "")
	memID := matter.GenerateID("memphisTN", "2025-123", "", "")
	require.NotEqual(t, nashID, memID)

	nash, err := p.matters.GetMatter(ctx, pool, nashID)
	require.NoError(t, err)
	mem, err := p.matters.GetMatter(ctx, pool, memID)
	require.NoError(t, err)

	assert.Equal(t, 1, nash.AppearanceCount)
	assert.Equal(t, 1, mem.AppearanceCount)
	assert.NotEqual(t, nash.CanonicalSummary, mem.CanonicalSummary, "no cross-city contamination")
	assert.Equal(t, int32(2), p.summarizer.calls.Load())
}

func TestPipeline_MonolithicFallback(t *testing.T) {
	texts := map[string]string{
		"https://docs.example/packet.pdf": "Full meeting packet text about the annual budget hearing.",
	}
	p, pool := buildPipeline(t, texts)
	ctx := context.Background()

	date := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	p.adapter.meetings = []models.RawMeeting{{
		VendorMeetingID: "P1", Title: "Budget Committee", Date: &date,
		PacketURLs: []string{"https://docs.example/packet.pdf"},
	}}
	require.NoError(t, p.jobs.Enqueue(ctx, pool, models.JobSyncCity, "nashvilleTN", store.SyncPriority))
	p.run(t, pool)

	m, err := p.meetings.GetMeeting(ctx, pool, "nashvilleTN_P1")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusCompleted, m.ProcessingStatus)
	assert.Equal(t, models.MethodMonolithic, m.ProcessingMethod)
	assert.NotEmpty(t, m.Summary)
	assert.False(t, m.HasItems)
}
