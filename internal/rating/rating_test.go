package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-rating/internal/domain"
)

func defaultSettings() Settings {
	return Settings{
		InitRating:    1500,
		InitDeviation: 300,
	}
}

func player(ratingValue, streak int) domain.PlayerRecord {
	return domain.PlayerRecord{
		ChannelID: 1,
		UserID:    100,
		Rating:    ratingValue,
		Deviation: 300,
		Streak:    streak,
	}
}

func TestNew(t *testing.T) {
	for _, system := range []string{SystemFlat, SystemGlicko2, SystemTrueSkill, SystemQuidditch} {
		s, err := New(system, defaultSettings())
		require.NoError(t, err, system)
		require.NotNil(t, s, system)
	}

	_, err := New("elo", defaultSettings())
	assert.Error(t, err)
}

func TestFlat_WinLoss(t *testing.T) {
	f := NewFlat(defaultSettings())

	w, l := f.Rate(
		[]domain.PlayerRecord{player(1500, 0)},
		[]domain.PlayerRecord{player(1500, 0)},
		false, TeamMeta{}, TeamMeta{},
	)

	require.Len(t, w, 1)
	require.Len(t, l, 1)

	assert.Equal(t, 1510, w[0].Rating)
	assert.Equal(t, 1, w[0].Wins)
	assert.Equal(t, 1, w[0].Streak)

	assert.Equal(t, 1490, l[0].Rating)
	assert.Equal(t, 1, l[0].Losses)
	assert.Equal(t, -1, l[0].Streak)
}

func TestFlat_Scaling(t *testing.T) {
	tests := []struct {
		name       string
		settings   Settings
		winner     domain.PlayerRecord
		loser      domain.PlayerRecord
		wantWinner int
		wantLoser  int
	}{
		{
			name:       "global scale halves both changes",
			settings:   Settings{InitRating: 1500, InitDeviation: 300, Scale: 50},
			winner:     player(1500, 0),
			loser:      player(1500, 0),
			wantWinner: 1505,
			wantLoser:  1495,
		},
		{
			name:       "win scale applies to winners only",
			settings:   Settings{InitRating: 1500, InitDeviation: 300, WinScale: 200},
			winner:     player(1500, 0),
			loser:      player(1500, 0),
			wantWinner: 1520,
			wantLoser:  1490,
		},
		{
			name:       "loss scale applies to losers only",
			settings:   Settings{InitRating: 1500, InitDeviation: 300, LossScale: 50},
			winner:     player(1500, 0),
			loser:      player(1500, 0),
			wantWinner: 1510,
			wantLoser:  1495,
		},
		{
			name:       "win streak boost kicks in above two",
			settings:   Settings{InitRating: 1500, InitDeviation: 300, WinStreakBoost: true},
			winner:     player(1500, 2),
			loser:      player(1500, 0),
			wantWinner: 1515, // streak becomes 3, change x1.5
			wantLoser:  1490,
		},
		{
			name:       "loss streak boost kicks in below minus two",
			settings:   Settings{InitRating: 1500, InitDeviation: 300, LossStreakBoost: true},
			winner:     player(1500, 0),
			loser:      player(1500, -2),
			wantWinner: 1510,
			wantLoser:  1485, // streak becomes -3, change x1.5
		},
		{
			name:       "streak boost caps at six",
			settings:   Settings{InitRating: 1500, InitDeviation: 300, LossStreakBoost: true},
			winner:     player(1500, 0),
			loser:      player(1500, -9),
			wantWinner: 1510,
			wantLoser:  1470, // min(10, 6)/2 = x3
		},
		{
			name:       "rating never drops below zero",
			settings:   Settings{InitRating: 1500, InitDeviation: 300},
			winner:     player(1500, 0),
			loser:      player(4, 0),
			wantWinner: 1510,
			wantLoser:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFlat(tt.settings)
			w, l := f.Rate(
				[]domain.PlayerRecord{tt.winner},
				[]domain.PlayerRecord{tt.loser},
				false, TeamMeta{}, TeamMeta{},
			)
			assert.Equal(t, tt.wantWinner, w[0].Rating)
			assert.Equal(t, tt.wantLoser, l[0].Rating)
		})
	}
}

func TestFlat_Draw(t *testing.T) {
	t.Run("no bonus means no change", func(t *testing.T) {
		f := NewFlat(defaultSettings())
		w, l := f.Rate(
			[]domain.PlayerRecord{player(1500, 3)},
			[]domain.PlayerRecord{player(1480, -2)},
			true, TeamMeta{}, TeamMeta{},
		)
		assert.Equal(t, 1500, w[0].Rating)
		assert.Equal(t, 1480, l[0].Rating)
		assert.Equal(t, 1, w[0].Draws)
		assert.Equal(t, 0, w[0].Streak, "draw resets the streak")
		assert.Equal(t, 0, l[0].Streak)
	})

	t.Run("draw bonus pays a share of the flat change", func(t *testing.T) {
		s := defaultSettings()
		s.DrawBonus = 50
		f := NewFlat(s)
		w, l := f.Rate(
			[]domain.PlayerRecord{player(1500, 0)},
			[]domain.PlayerRecord{player(1500, 0)},
			true, TeamMeta{}, TeamMeta{},
		)
		assert.Equal(t, 1505, w[0].Rating)
		assert.Equal(t, 1505, l[0].Rating)
	})
}

func TestScaler_DeviationFloor(t *testing.T) {
	s := defaultSettings()
	s.MinDeviation = 50
	f := NewFlat(s)

	p := player(1500, 0)
	p.Deviation = 40

	w, _ := f.Rate([]domain.PlayerRecord{p}, []domain.PlayerRecord{player(1500, 0)}, false, TeamMeta{}, TeamMeta{})
	assert.Equal(t, 50, w[0].Deviation)
}

func TestStrategies_DoNotMutateInputs(t *testing.T) {
	winners := []domain.PlayerRecord{player(1500, 2)}
	losers := []domain.PlayerRecord{player(1400, -1)}

	for _, system := range []string{SystemFlat, SystemGlicko2, SystemTrueSkill, SystemQuidditch} {
		s, err := New(system, defaultSettings())
		require.NoError(t, err)

		s.Rate(winners, losers, false, TeamMeta{}, TeamMeta{})

		assert.Equal(t, player(1500, 2), winners[0], system)
		assert.Equal(t, player(1400, -1), losers[0], system)
	}
}
