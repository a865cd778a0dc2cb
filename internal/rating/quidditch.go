package rating

import (
	"math"

	"pickup-rating/internal/domain"
)

// Quidditch 6v6: Elo on team-average ratings, weighted by draft pick order,
// captaincy, team strength differential and active streaks. A winner never
// gains less than minGain and a loser never loses less than minLoss.
const (
	quidditchKFactor  = 48
	captainMultiplier = 1.15
	minGain           = 10
	minLoss           = 10
	defaultDraftPick  = 4
)

// Indexed by zero-based pick order; early picks carry more weight.
var draftMultipliers = [...]float64{1.3, 1.2, 1.2, 1.15, 1.125, 1.1, 1.075, 1.05, 1.0, 1.0}

type Quidditch struct {
	scaler
}

func NewQuidditch(s Settings) *Quidditch {
	return &Quidditch{scaler: newScaler(s)}
}

func (q *Quidditch) Rate(winners, losers []domain.PlayerRecord, draw bool, winnerMeta, loserMeta TeamMeta) ([]domain.PlayerRecord, []domain.PlayerRecord) {
	winnerAvg := q.teamAvgOrInit(winners)
	loserAvg := q.teamAvgOrInit(losers)

	w := make([]domain.PlayerRecord, 0, len(winners))
	for _, p := range winners {
		actual := 1.0
		if draw {
			actual = 0.5
		}
		rChange := q.change(p, actual, winnerAvg, loserAvg, winnerMeta, true)
		rChange = math.Max(minGain, rChange)

		score := scoreWin
		if draw {
			score = scoreDraw
		}
		w = append(w, q.apply(p, rChange, 0, score))
	}

	l := make([]domain.PlayerRecord, 0, len(losers))
	for _, p := range losers {
		actual := 0.0
		if draw {
			actual = 0.5
		}
		rChange := q.change(p, actual, loserAvg, winnerAvg, loserMeta, false)
		rChange = math.Min(-minLoss, rChange)

		score := scoreLoss
		if draw {
			score = scoreDraw
		}
		l = append(l, q.apply(p, rChange, 0, score))
	}

	return w, l
}

func (q *Quidditch) change(p domain.PlayerRecord, actual, ownAvg, oppAvg float64, meta TeamMeta, isWinner bool) float64 {
	expected := expectedScore(ownAvg, oppAvg)
	base := quidditchKFactor * (actual - expected)

	return base *
		draftMultiplier(draftPosition(meta, p.UserID)) *
		q.captainMultiplier(meta, p.UserID) *
		differentialMultiplier(ownAvg, oppAvg, isWinner) *
		streakMultiplier(p.Streak, isWinner)
}

// expectedScore is the standard Elo win probability on team averages.
func expectedScore(ownAvg, oppAvg float64) float64 {
	return 1 / (1 + math.Pow(10, (oppAvg-ownAvg)/400))
}

func draftPosition(meta TeamMeta, userID int64) int {
	if pos, ok := meta.DraftPositions[userID]; ok {
		return pos
	}
	return defaultDraftPick
}

func draftMultiplier(pos int) float64 {
	if pos < 0 || pos >= len(draftMultipliers) {
		return 1.0
	}
	return draftMultipliers[pos]
}

func (q *Quidditch) captainMultiplier(meta TeamMeta, userID int64) float64 {
	if _, ok := meta.Captains[userID]; ok {
		return captainMultiplier
	}
	return 1.0
}

// differentialMultiplier favors underdogs: winners gain less when favored,
// losers lose less when outmatched. Bounded to [1.0, 2.3].
func differentialMultiplier(ownAvg, oppAvg float64, isWinner bool) float64 {
	diff := (ownAvg - oppAvg) / 200
	if isWinner {
		return 0.8 + math.Max(0.2, math.Min(1.5, 1+diff))
	}
	return 0.8 + math.Max(0.2, math.Min(1.5, 1-diff))
}

// streakMultiplier amplifies a change only when the result continues the
// active streak direction; a broken streak gets no bonus.
func streakMultiplier(streak int, isWin bool) float64 {
	if streak == 0 || (streak > 0 && !isWin) || (streak < 0 && isWin) {
		return 1.0
	}

	switch abs := absInt(streak); {
	case abs >= 5:
		return 1.3
	case abs >= 4:
		return 1.2
	case abs >= 3:
		return 1.1
	default:
		return 1.0
	}
}

func (q *Quidditch) teamAvgOrInit(players []domain.PlayerRecord) float64 {
	if len(players) == 0 {
		return float64(q.initRating)
	}
	avg, _ := teamAverages(players)
	return avg
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
