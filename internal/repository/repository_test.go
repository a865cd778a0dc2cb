package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-rating/internal/config"
	"pickup-rating/internal/database"
	"pickup-rating/internal/domain"
)

// testDB opens a per-test in-memory database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testPlayer(channelID, userID int64, ratingValue int) domain.PlayerRecord {
	return domain.PlayerRecord{
		ChannelID: channelID,
		UserID:    userID,
		Nick:      fmt.Sprintf("player-%d", userID),
		Rating:    ratingValue,
		Deviation: 150,
	}
}

func TestPlayerRepository_GetPlayersDefaults(t *testing.T) {
	db := testDB(t)
	repo := NewPlayerRepository(db, zerolog.Nop())
	ctx := context.Background()

	players, err := repo.GetPlayers(ctx, 1, []int64{10, 11}, 1500, 300)
	require.NoError(t, err)
	require.Len(t, players, 2)

	for _, p := range players {
		assert.Equal(t, 1500, p.Rating)
		assert.Equal(t, 300, p.Deviation)
		assert.Zero(t, p.Wins)
	}

	// Defaults must not create rows.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&count))
	assert.Zero(t, count)
}

func TestPlayerRepository_DeviationCappedOnRead(t *testing.T) {
	db := testDB(t)
	repo := NewPlayerRepository(db, zerolog.Nop())
	ctx := context.Background()

	p := testPlayer(1, 10, 1600)
	p.Deviation = 400
	require.NoError(t, repo.Upsert(ctx, &p))

	got, err := repo.GetPlayers(ctx, 1, []int64{10}, 1500, 300)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1600, got[0].Rating)
	assert.Equal(t, 300, got[0].Deviation, "stored deviation above the initial value is capped")

	// The raw listing keeps the stored value so decay can age it.
	raw, err := repo.ListRated(ctx, 1)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, 400, raw[0].Deviation)
}

func TestPlayerRepository_UpsertPreservesHidden(t *testing.T) {
	db := testDB(t)
	repo := NewPlayerRepository(db, zerolog.Nop())
	ctx := context.Background()

	p := testPlayer(1, 10, 1500)
	require.NoError(t, repo.Upsert(ctx, &p))
	require.NoError(t, repo.SetHidden(ctx, 1, 10, true))

	p.Rating = 1510
	require.NoError(t, repo.Upsert(ctx, &p))

	got, found, err := repo.Get(ctx, 1, 10, 1500, 300)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1510, got.Rating)
	assert.True(t, got.IsHidden, "rating updates must not reset the hidden flag")
}

func TestPlayerRepository_Leaderboard(t *testing.T) {
	db := testDB(t)
	repo := NewPlayerRepository(db, zerolog.Nop())
	ctx := context.Background()

	for i, r := range []int{1400, 1700, 1550} {
		p := testPlayer(1, int64(10+i), r)
		require.NoError(t, repo.Upsert(ctx, &p))
	}
	require.NoError(t, repo.SetHidden(ctx, 1, 11, true)) // the 1700 player

	rows, err := repo.Leaderboard(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1550, rows[0].Rating)
	assert.Equal(t, 1400, rows[1].Rating)
}

func TestPlayerRepository_GuardedAdjustmentsSkipMovedRows(t *testing.T) {
	db := testDB(t)
	repo := NewPlayerRepository(db, zerolog.Nop())
	history := NewHistoryRepository(db, zerolog.Nop())
	ctx := context.Background()

	p := testPlayer(1, 10, 1600)
	p.Deviation = 200
	require.NoError(t, repo.Upsert(ctx, &p))

	snapshot, err := repo.ListRated(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	// A settlement lands between the snapshot read and the adjustment write.
	settled := snapshot[0]
	settled.Rating = 1610
	settled.Wins = 1
	settled.Streak = 1
	require.NoError(t, repo.Upsert(ctx, &settled))

	stale := snapshot[0]
	adjusted := stale
	adjusted.Rating = 1585
	adjusted.Deviation = 230
	applied, err := repo.ApplyGuardedAdjustments(ctx, []Adjustment{{
		Before: stale,
		After:  adjusted,
		Entry: domain.RatingHistoryEntry{
			ChannelID: 1, UserID: 10, At: time.Now(),
			RatingBefore: stale.Rating, RatingChange: -15,
			DeviationBefore: stale.Deviation, DeviationChange: 30,
			Reason: "inactivity rating decay",
		},
	}})
	require.NoError(t, err)
	assert.Zero(t, applied, "a row that moved since the snapshot is skipped")

	got, found, err := repo.Get(ctx, 1, 10, 1500, 300)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1610, got.Rating, "the settlement result survives")
	assert.Equal(t, 1, got.Wins)

	entries, err := history.ForPlayer(ctx, 1, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "no ledger entry for a skipped adjustment")

	// A fresh snapshot goes through.
	fresh, err := repo.ListRated(ctx, 1)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	adjusted = fresh[0]
	adjusted.Rating = 1595
	adjusted.Deviation = 230
	applied, err = repo.ApplyGuardedAdjustments(ctx, []Adjustment{{
		Before: fresh[0],
		After:  adjusted,
		Entry: domain.RatingHistoryEntry{
			ChannelID: 1, UserID: 10, At: time.Now(),
			RatingBefore: fresh[0].Rating, RatingChange: -15,
			DeviationBefore: fresh[0].Deviation, DeviationChange: 30,
			Reason: "inactivity rating decay",
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	got, _, err = repo.Get(ctx, 1, 10, 1500, 300)
	require.NoError(t, err)
	assert.Equal(t, 1595, got.Rating)

	entries, err = history.ForPlayer(ctx, 1, 10, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, -15, entries[0].RatingChange)
}

func TestHistoryRepository(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepository(db, zerolog.Nop())
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	matchID := int64(1)
	first := domain.RatingHistoryEntry{
		ChannelID: 1, UserID: 10, At: base,
		RatingBefore: 1500, RatingChange: 10,
		DeviationBefore: 300, DeviationChange: -5,
		MatchID: &matchID, Reason: "2v2",
	}
	require.NoError(t, repo.Append(ctx, &first))
	assert.NotEmpty(t, first.ID, "append assigns an id")

	second := domain.RatingHistoryEntry{
		ChannelID: 1, UserID: 10, At: base.Add(time.Hour),
		RatingBefore: 1510, RatingChange: -10,
		DeviationBefore: 295, Reason: "inactivity rating decay",
	}
	require.NoError(t, repo.Append(ctx, &second))

	t.Run("for player newest first", func(t *testing.T) {
		entries, err := repo.ForPlayer(ctx, 1, 10, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, second.ID, entries[0].ID)
		assert.Equal(t, first.ID, entries[1].ID)
	})

	t.Run("by match", func(t *testing.T) {
		byMatch, err := repo.ByMatch(ctx, matchID)
		require.NoError(t, err)
		require.Len(t, byMatch, 1)
		entry := byMatch[10]
		assert.Equal(t, 10, entry.RatingChange)
		require.NotNil(t, entry.MatchID)
		assert.Equal(t, matchID, *entry.MatchID)
	})

	t.Run("has later entry follows insertion order", func(t *testing.T) {
		later, err := repo.HasLaterEntry(ctx, 1, 10, first.ID)
		require.NoError(t, err)
		assert.True(t, later)

		later, err = repo.HasLaterEntry(ctx, 1, 10, second.ID)
		require.NoError(t, err)
		assert.False(t, later, "the newest entry has nothing after it")
	})

	t.Run("same second entries still ordered", func(t *testing.T) {
		// Timestamps are stored at second granularity; insertion order must
		// break the tie.
		third := domain.RatingHistoryEntry{
			ChannelID: 1, UserID: 10, At: second.At,
			RatingBefore: 1500, RatingChange: 8,
			DeviationBefore: 295, Reason: "2v2",
		}
		require.NoError(t, repo.Append(ctx, &third))

		later, err := repo.HasLaterEntry(ctx, 1, 10, second.ID)
		require.NoError(t, err)
		assert.True(t, later, "an entry appended in the same second is later")

		later, err = repo.HasLaterEntry(ctx, 1, 10, third.ID)
		require.NoError(t, err)
		assert.False(t, later)
	})
}

func TestMatchRepository_RecordAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	next, err := repo.NextMatchID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), next)

	players := NewPlayerRepository(db, zerolog.Nop())
	known := testPlayer(1, 10, 1500)
	require.NoError(t, players.Upsert(ctx, &known))

	winner := 0
	m := &domain.Match{
		ID:        7,
		ChannelID: 1,
		QueueName: "2v2",
		At:        time.Now(),
		Teams: [2]domain.Team{
			{Name: "Alpha", Players: []int64{10, 11}},
			{Name: "Beta", Players: []int64{20, 21}},
		},
		Winner: &winner,
		Scores: [2]int{3, 1},
		Ranked: true,
	}
	require.NoError(t, repo.RecordRanked(ctx, m, nil, nil))

	row, found, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2v2", row.QueueName)
	assert.True(t, row.Ranked)
	require.NotNil(t, row.Winner)
	assert.Equal(t, 0, *row.Winner)

	participants, err := repo.Participants(ctx, 7)
	require.NoError(t, err)
	require.Len(t, participants, 4)
	nicks := make(map[int64]string, len(participants))
	for _, p := range participants {
		nicks[p.UserID] = p.Nick
	}
	assert.Equal(t, "player-10", nicks[10], "roster rows carry the nick known at record time")
	assert.Empty(t, nicks[20])

	next, err = repo.NextMatchID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), next)

	_, found, err = repo.Get(ctx, 99)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSettingsRepository_RoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewSettingsRepository(db, zerolog.Nop())
	ctx := context.Background()

	_, found, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	settings := config.DefaultChannelSettings(1)
	settings.System = "glicko2"
	settings.Ranks = []domain.Rank{
		{Name: "Bronze", Rating: 1200},
		{Name: "Silver", Rating: 1500},
		{Name: "Gold", Rating: 1800},
	}
	require.NoError(t, repo.Upsert(ctx, &settings))

	got, found, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "glicko2", got.System)
	assert.Equal(t, settings.Ranks, got.Ranks)
	assert.Equal(t, []int{1200, 1500, 1800}, got.Thresholds())

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
