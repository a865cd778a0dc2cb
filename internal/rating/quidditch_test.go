package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-rating/internal/domain"
)

func quidditchTeam(base int64, ratings ...int) []domain.PlayerRecord {
	team := make([]domain.PlayerRecord, 0, len(ratings))
	for i, r := range ratings {
		team = append(team, domain.PlayerRecord{
			ChannelID: 1,
			UserID:    base + int64(i),
			Rating:    r,
			Deviation: 300,
		})
	}
	return team
}

// Evenly matched teams, no draft metadata: base change is K/2 = 24, then
// default pick weight 1.125 and even-strength differential 1.8.
func TestQuidditch_EvenTeams(t *testing.T) {
	q := NewQuidditch(defaultSettings())

	w, l := q.Rate(
		quidditchTeam(100, 1500),
		quidditchTeam(200, 1500),
		false, TeamMeta{}, TeamMeta{},
	)

	require.Len(t, w, 1)
	require.Len(t, l, 1)
	assert.Equal(t, 1549, w[0].Rating) // 24 * 1.125 * 1.8 = 48.6
	assert.Equal(t, 1451, l[0].Rating)
	assert.Equal(t, 1, w[0].Wins)
	assert.Equal(t, 1, l[0].Losses)
}

func TestQuidditch_DraftWeighting(t *testing.T) {
	winners := quidditchTeam(100, 1500)
	losers := quidditchTeam(200, 1500)

	t.Run("first pick carries the most weight", func(t *testing.T) {
		q := NewQuidditch(defaultSettings())
		meta := TeamMeta{DraftPositions: map[int64]int{100: 0}}
		w, _ := q.Rate(winners, losers, false, meta, TeamMeta{})
		assert.Equal(t, 1556, w[0].Rating) // 24 * 1.3 * 1.8 = 56.16
	})

	t.Run("captains take an extra share", func(t *testing.T) {
		q := NewQuidditch(defaultSettings())
		meta := TeamMeta{Captains: map[int64]struct{}{100: {}}}
		w, _ := q.Rate(winners, losers, false, meta, TeamMeta{})
		assert.Equal(t, 1556, w[0].Rating) // 48.6 * 1.15 = 55.89
	})
}

func TestQuidditch_ChangeFloors(t *testing.T) {
	q := NewQuidditch(defaultSettings())

	// A heavy favorite beating an outmatched team still moves at least the
	// minimum in both directions.
	w, l := q.Rate(
		quidditchTeam(100, 2000),
		quidditchTeam(200, 1000),
		false, TeamMeta{}, TeamMeta{},
	)

	assert.Equal(t, 2010, w[0].Rating)
	assert.Equal(t, 990, l[0].Rating)
}

func TestQuidditch_StreakMultiplier(t *testing.T) {
	tests := []struct {
		name   string
		streak int
		want   int
	}{
		{"no streak", 0, 1549},
		{"short streak has no bonus", 2, 1549},
		{"three-win streak", 3, 1553},  // 48.6 * 1.1
		{"five-win streak", 5, 1563},   // 48.6 * 1.3
		{"broken loss streak", -4, 1549}, // a win does not amplify a loss streak
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuidditch(defaultSettings())
			winners := quidditchTeam(100, 1500)
			winners[0].Streak = tt.streak

			w, _ := q.Rate(winners, quidditchTeam(200, 1500), false, TeamMeta{}, TeamMeta{})
			assert.Equal(t, tt.want, w[0].Rating)
		})
	}
}

func TestQuidditch_TeamAverage(t *testing.T) {
	q := NewQuidditch(defaultSettings())

	// Both players on a team see the same team-level expected score, so the
	// weaker player gains exactly as much as the stronger one absent meta.
	w, _ := q.Rate(
		quidditchTeam(100, 1600, 1400),
		quidditchTeam(200, 1500, 1500),
		false, TeamMeta{}, TeamMeta{},
	)

	require.Len(t, w, 2)
	assert.Equal(t, w[0].Rating-1600, w[1].Rating-1400)
}
