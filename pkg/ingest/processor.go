package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/extract"
	"github.com/engagic/engagic/pkg/llm"
	"github.com/engagic/engagic/pkg/matter"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/queue"
	"github.com/engagic/engagic/pkg/store"
	"github.com/engagic/engagic/pkg/topics"
)

// batchItemLimit caps how many items go into one batched LLM call.
const (
	batchItemLimit = 20
	batchCharLimit = 150_000
)

// TextExtractor is the processor's view of the extractor; the premium-tier
// strategies planned for later slot in behind it.
type TextExtractor interface {
	Extract(ctx context.Context, url string) (*extract.Result, error)
}

// Summarizer is the processor's view of the LLM layer.
type Summarizer interface {
	Summarize(ctx context.Context, req llm.Request) (*llm.Result, error)
	SummarizeBatch(ctx context.Context, reqs []llm.Request) ([]llm.Result, error)
}

// Processor executes process_meeting jobs: extract → summarise → normalise
// → persist, with matter-aware summary reuse.
type Processor struct {
	db         *pgxpool.Pool
	meetings   *store.MeetingRepo
	items      *store.ItemRepo
	cache      *store.CacheRepo
	tracker    *matter.Tracker
	extractor  TextExtractor
	summarizer Summarizer
	normalizer *topics.Normalizer
	metrics    *queue.Metrics
	log        *slog.Logger
}

// NewProcessor creates the processing executor.
func NewProcessor(db *pgxpool.Pool, meetings *store.MeetingRepo, items *store.ItemRepo, cache *store.CacheRepo, tracker *matter.Tracker, extractor TextExtractor, summarizer Summarizer, normalizer *topics.Normalizer, metrics *queue.Metrics) *Processor {
	return &Processor{
		db:         db,
		meetings:   meetings,
		items:      items,
		cache:      cache,
		tracker:    tracker,
		extractor:  extractor,
		summarizer: summarizer,
		normalizer: normalizer,
		metrics:    metrics,
		log:        slog.With("component", "processor"),
	}
}

// itemWork is one item's in-flight processing state.
type itemWork struct {
	item    models.AgendaItem
	track   *matter.Track
	text    string
	hash    string
	summary string
	topics  []string
	// failed marks extraction/summarisation failures; the item is persisted
	// with a null summary and the meeting still completes
	failed bool
}

// Execute runs one processing job. process_meeting payloads carry the
// meeting id; process_item payloads carry "meeting_id/item_id".
func (p *Processor) Execute(ctx context.Context, job *models.QueueJob) error {
	if job.Kind == models.JobProcessItem {
		return p.executeItem(ctx, job)
	}
	meeting, err := p.meetings.GetMeeting(ctx, p.db, job.Payload)
	if err != nil {
		return fmt.Errorf("failed to load meeting %q: %w", job.Payload, err)
	}
	log := p.log.With("meeting_id", meeting.ID, "banana", meeting.Banana)

	if err := p.meetings.SetProcessingStatus(ctx, p.db, meeting.ID, models.ProcessingStatusProcessing); err != nil {
		return err
	}

	start := time.Now()
	items, err := p.items.GetAgendaItems(ctx, p.db, meeting.ID)
	if err != nil {
		return err
	}

	var method models.ProcessingMethod
	if len(items) > 0 {
		method, err = p.processItemBased(ctx, meeting, items, log)
	} else {
		method = models.MethodMonolithic
		err = p.processMonolithic(ctx, meeting, log)
	}
	if err != nil {
		// DatabaseError and friends: put the meeting back to pending-shaped
		// failed state and let the queue retry the job
		if statusErr := p.meetings.SetProcessingStatus(ctx, p.db, meeting.ID, models.ProcessingStatusFailed); statusErr != nil {
			log.Error("failed to record failure status", "error", statusErr)
		}
		return err
	}

	if err := p.meetings.SetProcessingResult(ctx, p.db, meeting.ID, models.ProcessingStatusCompleted, method, time.Since(start)); err != nil {
		return err
	}
	log.Info("Meeting processed", "method", method, "elapsed", time.Since(start))
	return nil
}

// executeItem reprocesses a single agenda item, used when one item of an
// already-completed meeting needs a fresh summary.
func (p *Processor) executeItem(ctx context.Context, job *models.QueueJob) error {
	meetingID, itemID, ok := strings.Cut(job.Payload, "/")
	if !ok {
		return models.NewValidationError("payload", "process_item payload must be meeting_id/item_id")
	}

	items, err := p.items.GetAgendaItems(ctx, p.db, meetingID)
	if err != nil {
		return err
	}
	var target *models.AgendaItem
	for i := range items {
		if items[i].ID == itemID {
			target = &items[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("item %q not found in meeting %q: %w", itemID, meetingID, store.ErrNotFound)
	}

	track, err := p.tracker.Decide(ctx, p.db, target)
	if err != nil {
		return err
	}
	if track.Decision == matter.DecisionReuse {
		p.metrics.CacheHits.Inc()
		return database.WithTx(ctx, p.db, func(tx pgx.Tx) error {
			return p.items.ApplyCanonicalSummary(ctx, tx, meetingID, itemID, track.MatterID)
		})
	}

	text, err := p.extractItemText(ctx, target)
	if err != nil {
		return err
	}
	if text == "" {
		return p.items.UpdateAgendaItem(ctx, p.db, store.ItemSummaryUpdate{MeetingID: meetingID, ItemID: itemID})
	}

	p.metrics.LLMCalls.Inc()
	result, err := p.summarizer.Summarize(ctx, llm.Request{Title: target.Title, Text: text})
	if err != nil {
		var procErr *llm.ProcessingError
		if errors.As(err, &procErr) {
			return p.items.UpdateAgendaItem(ctx, p.db, store.ItemSummaryUpdate{MeetingID: meetingID, ItemID: itemID})
		}
		return err
	}

	err = database.WithTx(ctx, p.db, func(tx pgx.Tx) error {
		return p.items.UpdateAgendaItem(ctx, tx, store.ItemSummaryUpdate{
			MeetingID: meetingID, ItemID: itemID,
			Summary: result.SummaryMarkdown, Topics: result.Topics,
		})
	})
	if err != nil {
		return err
	}

	if track.MatterID != "" {
		return database.WithTx(ctx, p.db, func(tx pgx.Tx) error {
			return p.tracker.SetCanonical(ctx, tx, track.MatterID, result.SummaryMarkdown, track.AttachmentHash, result.Topics)
		})
	}
	return nil
}

// processItemBased summarises each agenda item, reusing canonical matter
// summaries and the content cache where the hashes line up. All item writes
// land in one transaction so readers see the meeting's items atomically.
func (p *Processor) processItemBased(ctx context.Context, meeting *models.Meeting, items []models.AgendaItem, log *slog.Logger) (models.ProcessingMethod, error) {
	work := make([]*itemWork, 0, len(items))
	for i := range items {
		w := &itemWork{item: items[i]}
		track, err := p.tracker.Decide(ctx, p.db, &items[i])
		if err != nil {
			return "", err
		}
		w.track = track
		work = append(work, w)
	}

	// phase 1: gather text for everything that needs the LLM
	var llmWork []*itemWork
	for _, w := range work {
		if w.track.Decision == matter.DecisionReuse {
			p.metrics.CacheHits.Inc()
			continue
		}
		text, err := p.extractItemText(ctx, &w.item)
		if err != nil {
			return "", err
		}
		if text == "" {
			log.Warn("no usable text for item, persisting without summary",
				"item_id", w.item.ID)
			w.failed = true
			continue
		}
		w.text = text
		w.hash = contentHash(text)

		// content cache: identical packet text never hits the LLM twice
		if entry, err := p.cache.Get(ctx, p.db, w.hash); err == nil {
			w.summary = entry.Summary
			w.topics = entry.Topics
			p.metrics.CacheHits.Inc()
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		llmWork = append(llmWork, w)
	}

	// phase 2: summarise, batching when everything fits one call
	method := models.MethodItemBased
	if len(llmWork) > 0 {
		if p.tryBatch(ctx, llmWork, log) {
			method = models.MethodBatch
		} else {
			for _, w := range llmWork {
				p.summarizeItem(ctx, w, log)
			}
		}
		for _, w := range llmWork {
			if !w.failed && w.summary != "" {
				if err := p.cache.Put(ctx, p.db, &models.CacheEntry{
					ContentHash: w.hash,
					Summary:     w.summary,
					Topics:      w.topics,
					Method:      string(method),
				}); err != nil {
					log.Warn("cache write failed", "error", err)
				}
			}
		}
	}

	// phase 3: persist the whole meeting atomically
	err := database.WithTx(ctx, p.db, func(tx pgx.Tx) error {
		for _, w := range work {
			switch {
			case w.track.Decision == matter.DecisionReuse:
				if err := p.items.ApplyCanonicalSummary(ctx, tx, w.item.MeetingID, w.item.ID, w.track.MatterID); err != nil {
					return err
				}
			case w.failed:
				if err := p.items.UpdateAgendaItem(ctx, tx, store.ItemSummaryUpdate{
					MeetingID: w.item.MeetingID, ItemID: w.item.ID,
				}); err != nil {
					return err
				}
			default:
				if err := p.items.UpdateAgendaItem(ctx, tx, store.ItemSummaryUpdate{
					MeetingID: w.item.MeetingID,
					ItemID:    w.item.ID,
					Summary:   w.summary,
					Topics:    w.topics,
				}); err != nil {
					return err
				}
			}
		}

		// aggregate item topics up to the meeting
		perItem := make([][]string, 0, len(work))
		for _, w := range work {
			if w.track.Decision == matter.DecisionReuse && w.track.Canonical != nil {
				perItem = append(perItem, w.track.Canonical.Topics)
			} else {
				perItem = append(perItem, w.topics)
			}
		}
		return p.meetings.ReplaceTopics(ctx, tx, meeting.ID, p.normalizer.AggregateMeetingTopics(perItem))
	})
	if err != nil {
		return "", err
	}

	// cross-meeting canonical propagation happens outside the item
	// transaction: a matter's canonical copy spans meetings
	for _, w := range work {
		if w.failed || w.summary == "" {
			continue
		}
		switch w.track.Decision {
		case matter.DecisionNew, matter.DecisionReprocess:
			err := database.WithTx(ctx, p.db, func(tx pgx.Tx) error {
				return p.tracker.SetCanonical(ctx, tx, w.track.MatterID, w.summary, w.track.AttachmentHash, w.topics)
			})
			if err != nil {
				return "", err
			}
		}
	}
	return method, nil
}

// processMonolithic summarises the meeting's packet as one document.
func (p *Processor) processMonolithic(ctx context.Context, meeting *models.Meeting, log *slog.Logger) error {
	urls := meeting.PacketURLs
	if len(urls) == 0 && meeting.AgendaURL != "" {
		urls = []string{meeting.AgendaURL}
	}

	var texts []string
	for _, u := range urls {
		result, err := p.extractor.Extract(ctx, u)
		if err != nil {
			var exErr *extract.Error
			if errors.As(err, &exErr) {
				log.Warn("packet extraction failed", "url", u, "error", err)
				continue
			}
			return err
		}
		if result.Quality == models.QualityPoor {
			log.Warn("packet text quality poor", "url", u)
		}
		texts = append(texts, result.Text)
	}
	text := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if text == "" {
		// nothing extractable: the meeting still completes with a null
		// summary so it appears downstream
		return p.meetings.UpdateMeetingSummary(ctx, p.db, meeting.ID, "", nil)
	}

	// vendors without structured participation data still print it in the
	// agenda text
	if meeting.Participation == nil {
		if part := extract.ParseParticipation(text); part != nil {
			if err := p.meetings.SetParticipation(ctx, p.db, meeting.ID, part); err != nil {
				log.Warn("failed to store participation", "error", err)
			}
		}
	}

	hash := contentHash(text)
	if entry, err := p.cache.Get(ctx, p.db, hash); err == nil {
		p.metrics.CacheHits.Inc()
		return p.meetings.UpdateMeetingSummary(ctx, p.db, meeting.ID, entry.Summary, entry.Topics)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	p.metrics.LLMCalls.Inc()
	result, err := p.summarizer.Summarize(ctx, llm.Request{Title: meeting.Title, Text: text})
	if err != nil {
		var procErr *llm.ProcessingError
		if errors.As(err, &procErr) {
			log.Warn("summarisation failed, persisting without summary", "error", err)
			return p.meetings.UpdateMeetingSummary(ctx, p.db, meeting.ID, "", nil)
		}
		return err
	}

	if err := p.cache.Put(ctx, p.db, &models.CacheEntry{
		ContentHash: hash,
		Summary:     result.SummaryMarkdown,
		Topics:      result.Topics,
		Method:      string(models.MethodMonolithic),
		CostCents:   result.CostCents,
	}); err != nil {
		log.Warn("cache write failed", "error", err)
	}
	return p.meetings.UpdateMeetingSummary(ctx, p.db, meeting.ID, result.SummaryMarkdown, result.Topics)
}

// tryBatch attempts one batched call for all pending items. Returns false
// when the batch is oversized or fails, and the caller falls back to per-item
// calls.
func (p *Processor) tryBatch(ctx context.Context, work []*itemWork, log *slog.Logger) bool {
	if len(work) < 2 || len(work) > batchItemLimit {
		return false
	}
	total := 0
	for _, w := range work {
		total += len(w.text)
	}
	if total > batchCharLimit {
		return false
	}

	reqs := make([]llm.Request, len(work))
	for i, w := range work {
		reqs[i] = llm.Request{Title: w.item.Title, Text: w.text}
	}

	p.metrics.LLMCalls.Inc()
	results, err := p.summarizer.SummarizeBatch(ctx, reqs)
	if err != nil {
		log.Warn("batch summarisation failed, falling back to per-item calls", "error", err)
		return false
	}
	for i, w := range work {
		w.summary = results[i].SummaryMarkdown
		w.topics = results[i].Topics
	}
	return true
}

// summarizeItem runs one item through the LLM; failures mark the item
// instead of failing the meeting.
func (p *Processor) summarizeItem(ctx context.Context, w *itemWork, log *slog.Logger) {
	p.metrics.LLMCalls.Inc()
	result, err := p.summarizer.Summarize(ctx, llm.Request{Title: w.item.Title, Text: w.text})
	if err != nil {
		log.Warn("item summarisation failed, persisting without summary",
			"item_id", w.item.ID, "error", err)
		w.failed = true
		return
	}
	w.summary = result.SummaryMarkdown
	w.topics = result.Topics
}

// extractItemText concatenates the text of the item's attachments.
func (p *Processor) extractItemText(ctx context.Context, item *models.AgendaItem) (string, error) {
	var texts []string
	for _, a := range item.Attachment {
		if a.URL == "" {
			continue
		}
		result, err := p.extractor.Extract(ctx, a.URL)
		if err != nil {
			var exErr *extract.Error
			if errors.As(err, &exErr) {
				// one unreadable attachment does not sink the item
				continue
			}
			return "", err
		}
		if result.Quality == models.QualityPoor {
			continue
		}
		texts = append(texts, result.Text)
	}
	if len(texts) == 0 {
		// no attachments or nothing usable: summarise the title alone is
		// pointless, so the item goes unsummarised
		return "", nil
	}
	return strings.Join(texts, "\n\n"), nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
