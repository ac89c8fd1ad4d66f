package matter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/engagic/pkg/matter"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/store"
	testdb "github.com/engagic/engagic/test/database"
)

func TestTracker_AppearancesAndDisposition(t *testing.T) {
	pool := testdb.NewTestPool(t)
	ctx := context.Background()

	cityRepo := store.NewCityRepo()
	meetingRepo := store.NewMeetingRepo()
	matterRepo := store.NewMatterRepo()
	tracker := matter.NewTracker(matterRepo)

	require.NoError(t, cityRepo.AddCity(ctx, pool, &models.City{
		Banana: "nashvilleTN", Name: "Nashville", State: "TN",
		Vendor: models.VendorLegistar, Slug: "nashville",
	}))

	m1Date := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)
	m2Date := time.Date(2025, 5, 15, 18, 0, 0, 0, time.UTC)
	for id, date := range map[string]time.Time{"nashvilleTN_M1": m1Date, "nashvilleTN_M2": m2Date} {
		d := date
		_, err := meetingRepo.StoreMeeting(ctx, pool, &models.Meeting{
			ID: id, Banana: "nashvilleTN", Title: "Council", Date: &d,
			AgendaURL: "https://example.gov/" + id,
		})
		require.NoError(t, err)
	}

	matterID := matter.GenerateID("nashvilleTN", "BL2025-1098", "", "")
	item1 := &models.AgendaItem{
		ID: "i1", MeetingID: "nashvilleTN_M1",
		Title:    "FIRST READING: An ordinance amending the zoning code",
		MatterID: matterID, MatterFile: "BL2025-1098",
		Attachment: []models.Attachment{{URL: "https://example.gov/a.pdf", Type: "pdf"}},
	}

	track, err := tracker.TrackItem(ctx, pool, "nashvilleTN", "", item1, &m1Date)
	require.NoError(t, err)
	assert.Equal(t, matter.DecisionNew, track.Decision)

	t.Run("re-tracking the same meeting is idempotent", func(t *testing.T) {
		_, err := tracker.TrackItem(ctx, pool, "nashvilleTN", "", item1, &m1Date)
		require.NoError(t, err)
		m, err := matterRepo.GetMatter(ctx, pool, matterID)
		require.NoError(t, err)
		assert.Equal(t, 1, m.AppearanceCount, "one meeting, one appearance")
	})

	item2 := &models.AgendaItem{
		ID: "i2", MeetingID: "nashvilleTN_M2",
		Title:    "SECOND READING: An ordinance amending the zoning code",
		MatterID: matterID, MatterFile: "BL2025-1098",
		Attachment: item1.Attachment,
	}
	track, err = tracker.TrackItem(ctx, pool, "nashvilleTN", "", item2, &m2Date)
	require.NoError(t, err)
	// no canonical summary exists yet, so the second appearance reprocesses
	assert.Equal(t, matter.DecisionReprocess, track.Decision)

	m, err := matterRepo.GetMatter(ctx, pool, matterID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.AppearanceCount)
	assert.True(t, m.FirstSeen.Before(m.LastSeen))

	t.Run("reuse once a canonical summary exists", func(t *testing.T) {
		require.NoError(t, tracker.SetCanonical(ctx, pool, matterID,
			"## Canonical", matter.AttachmentHash(item2.Attachment), []string{"zoning"}))

		track, err := tracker.Decide(ctx, pool, item2)
		require.NoError(t, err)
		assert.Equal(t, matter.DecisionReuse, track.Decision)
	})

	t.Run("terminal vote sets disposition", func(t *testing.T) {
		voteDate := m2Date
		require.NoError(t, tracker.RecordVote(ctx, pool, matterID, &models.RawVote{
			Action: "Pass", Date: &voteDate, Outcome: models.VotePassed,
		}))

		m, err := matterRepo.GetMatter(ctx, pool, matterID)
		require.NoError(t, err)
		assert.Equal(t, models.DispositionPassed, m.Status)
		require.NotNil(t, m.FinalVoteDate)
	})

	t.Run("tracking invariants hold", func(t *testing.T) {
		violations, err := matterRepo.ValidateMatterTracking(ctx, pool)
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("untracked items stay untracked", func(t *testing.T) {
		track, err := tracker.TrackItem(ctx, pool, "nashvilleTN", "",
			&models.AgendaItem{ID: "i3", MeetingID: "nashvilleTN_M1", Title: "Public Comment"}, &m1Date)
		require.NoError(t, err)
		assert.Equal(t, matter.DecisionUntracked, track.Decision)
	})
}
