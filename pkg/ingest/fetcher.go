// Package ingest contains the job executors: the fetcher drives city syncs,
// the processor drives summarisation.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/matter"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/store"
	"github.com/engagic/engagic/pkg/vendors"
)

// syncDaysBack and syncDaysForward bound the fetch horizon around today.
const (
	syncDaysBack    = 14
	syncDaysForward = 45
)

// Fetcher executes sync_city jobs: pull the city's meetings from its
// vendor, persist them, and enqueue processing for anything new or changed.
type Fetcher struct {
	db       *pgxpool.Pool
	cities   *store.CityRepo
	meetings *store.MeetingRepo
	items    *store.ItemRepo
	jobs     *store.QueueRepo
	tracker  *matter.Tracker
	registry *vendors.Registry
	limiter  *vendors.RateLimiter
	log      *slog.Logger
}

// NewFetcher creates the sync executor.
func NewFetcher(db *pgxpool.Pool, cities *store.CityRepo, meetings *store.MeetingRepo, items *store.ItemRepo, jobs *store.QueueRepo, tracker *matter.Tracker, registry *vendors.Registry, limiter *vendors.RateLimiter) *Fetcher {
	return &Fetcher{
		db:       db,
		cities:   cities,
		meetings: meetings,
		items:    items,
		jobs:     jobs,
		tracker:  tracker,
		registry: registry,
		limiter:  limiter,
		log:      slog.With("component", "fetcher"),
	}
}

// Execute runs one sync_city job. The payload is the city banana.
func (f *Fetcher) Execute(ctx context.Context, job *models.QueueJob) error {
	city, err := f.cities.GetCity(ctx, f.db, store.GetCityQuery{Banana: job.Payload})
	if err != nil {
		return fmt.Errorf("failed to load city %q: %w", job.Payload, err)
	}

	adapter, err := f.registry.Get(city.Vendor)
	if err != nil {
		return err
	}

	if err := f.limiter.Wait(ctx, vendorHost(city)); err != nil {
		return err
	}

	log := f.log.With("banana", city.Banana, "vendor", city.Vendor)
	start := time.Now()

	raws, err := adapter.FetchMeetings(ctx, city.Slug, syncDaysBack, syncDaysForward)
	if err != nil {
		// a vendor Retry-After pushes this city's bucket (see vendorHost)
		// out so its next sync backs off too
		var rateErr *vendors.VendorRateLimitedError
		if errors.As(err, &rateErr) && rateErr.RetryAfterSeconds > 0 {
			f.limiter.Backoff(vendorHost(city), time.Duration(rateErr.RetryAfterSeconds)*time.Second)
		}
		// VendorError aborts this city's sync; the queue retries the job
		return err
	}
	log.Info("Fetched meetings", "count", len(raws), "elapsed", time.Since(start))

	discoverer, canDiscover := adapter.(vendors.AttachmentDiscoverer)

	stored, enqueued := 0, 0
	for i := range raws {
		raw := &raws[i]
		meeting := f.toMeeting(city, raw)
		if meeting == nil {
			continue
		}

		// agenda-only meetings from listing-scrape vendors: walk the agenda
		// page for the packet documents
		if canDiscover && len(meeting.PacketURLs) == 0 && len(raw.Items) == 0 && meeting.AgendaURL != "" {
			if found, err := discoverer.DiscoverItemAttachments(ctx, meeting.AgendaURL); err == nil {
				for _, a := range found {
					meeting.PacketURLs = append(meeting.PacketURLs, a.URL)
				}
			} else {
				log.Debug("attachment discovery failed", "meeting_id", meeting.ID, "error", err)
			}
		}

		var result store.StoreResult
		err := database.WithTx(ctx, f.db, func(tx pgx.Tx) error {
			var err error
			result, err = f.meetings.StoreMeeting(ctx, tx, meeting)
			if err != nil {
				return err
			}
			if result == store.StoreUnchanged {
				return nil
			}
			return f.storeItems(ctx, tx, city, meeting, raw)
		})
		if err != nil {
			log.Warn("failed to store meeting", "meeting_id", meeting.ID, "error", err)
			continue
		}
		stored++

		if result == store.StoreUnchanged {
			continue
		}
		priority := store.MeetingPriority(meeting.Date, time.Now())
		if err := f.jobs.Enqueue(ctx, f.db, models.JobProcessMeeting, meeting.ID, priority); err != nil {
			log.Warn("failed to enqueue processing", "meeting_id", meeting.ID, "error", err)
			continue
		}
		enqueued++
	}

	if err := f.cities.TouchLastSync(ctx, f.db, city.Banana, time.Now().UTC()); err != nil {
		return err
	}
	log.Info("Sync complete", "stored", stored, "enqueued", enqueued)
	return nil
}

// toMeeting converts a RawMeeting, deriving the scoped meeting id.
func (f *Fetcher) toMeeting(city *models.City, raw *models.RawMeeting) *models.Meeting {
	if raw.VendorMeetingID == "" || raw.Title == "" {
		f.log.Warn("skipping half-built meeting record",
			"banana", city.Banana, "title", raw.Title)
		return nil
	}
	m := &models.Meeting{
		ID:              city.Banana + "_" + raw.VendorMeetingID,
		Banana:          city.Banana,
		Title:           raw.Title,
		Date:            raw.Date,
		AgendaURL:       raw.AgendaURL,
		PacketURLs:      raw.PacketURLs,
		Participation:   raw.Participation,
		Status:          raw.Status,
		VendorUpdatedAt: raw.UpdatedAt,
	}
	if !m.HasAgenda() {
		f.log.Warn("skipping meeting without documents",
			"banana", city.Banana, "meeting_id", m.ID)
		return nil
	}
	return m
}

// storeItems converts and persists the raw items, tracking matters in the
// same transaction so the FK from items to city_matters always holds.
func (f *Fetcher) storeItems(ctx context.Context, tx pgx.Tx, city *models.City, meeting *models.Meeting, raw *models.RawMeeting) error {
	items := make([]models.AgendaItem, 0, len(raw.Items))
	for i := range raw.Items {
		ri := &raw.Items[i]
		if ri.Title == "" {
			f.log.Warn("skipping item without title",
				"meeting_id", meeting.ID, "sequence", ri.Sequence)
			continue
		}
		item := models.AgendaItem{
			ID:         itemID(meeting.ID, ri),
			MeetingID:  meeting.ID,
			Title:      ri.Title,
			Sequence:   ri.Sequence,
			Attachment: ri.Attachments,
			Sponsors:   ri.Sponsors,
			MatterFile: ri.MatterFile,
			MatterID:   matter.GenerateID(city.Banana, ri.MatterFile, ri.MatterID, ri.Title),
		}

		if item.MatterID != "" {
			if _, err := f.tracker.TrackItem(ctx, tx, city.Banana, ri.MatterID, &item, meeting.Date); err != nil {
				return err
			}
			for j := range ri.Votes {
				if err := f.tracker.RecordVote(ctx, tx, item.MatterID, &ri.Votes[j]); err != nil {
					return err
				}
			}
		}
		items = append(items, item)
	}
	return f.items.StoreAgendaItems(ctx, tx, items)
}

// itemID derives a stable item id from the item's identity within its
// meeting.
func itemID(meetingID string, item *models.RawAgendaItem) string {
	h := sha256.New()
	h.Write([]byte(meetingID))
	h.Write([]byte{0})
	if item.MatterFile != "" {
		h.Write([]byte(item.MatterFile))
	} else if item.MatterID != "" {
		h.Write([]byte(item.MatterID))
	} else {
		h.Write([]byte(item.Title))
		h.Write([]byte{0})
		h.Write([]byte(fmt.Sprintf("%d", item.Sequence)))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// vendorHost is the politeness key: the city's slug read as a host name (a
// bare slug such as "nashville" is used as is), or "vendor:slug" when the slug
// does not parse. Each city therefore gets its own bucket; cities whose
// adapter calls one shared host (Legistar's web API) do not share a bucket.
func vendorHost(city *models.City) string {
	for _, candidate := range []string{city.Slug} {
		if u, err := url.Parse("https://" + candidate); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return string(city.Vendor) + ":" + city.Slug
}
