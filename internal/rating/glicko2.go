package rating

import (
	glicko "github.com/zelenin/go-glicko2"

	"pickup-rating/internal/domain"
)

// Glicko2 treats the opposing team as one virtual opponent at its average
// rating and deviation. Each player keeps their own deviation as input, so a
// confident player moves less than a provisional one on the same result.
type Glicko2 struct {
	scaler
}

func NewGlicko2(s Settings) *Glicko2 {
	return &Glicko2{scaler: newScaler(s)}
}

func (g *Glicko2) Rate(winners, losers []domain.PlayerRecord, draw bool, _, _ TeamMeta) ([]domain.PlayerRecord, []domain.PlayerRecord) {
	winAvg, _ := teamAverages(winners)
	lossAvg, lossDevAvg := teamAverages(losers)
	_, winDevAvg := teamAverages(winners)

	winResult := glicko.MATCH_RESULT_WIN
	lossResult := glicko.MATCH_RESULT_LOSS
	if draw {
		winResult = glicko.MATCH_RESULT_DRAW
		lossResult = glicko.MATCH_RESULT_DRAW
	}

	w := make([]domain.PlayerRecord, 0, len(winners))
	for _, p := range winners {
		rChange, dChange := g.single(winAvg, float64(p.Deviation), lossAvg, lossDevAvg, winResult)
		score := scoreWin
		if draw {
			score = scoreDraw
		}
		w = append(w, g.apply(p, rChange, dChange, score))
	}

	l := make([]domain.PlayerRecord, 0, len(losers))
	for _, p := range losers {
		rChange, dChange := g.single(lossAvg, float64(p.Deviation), winAvg, winDevAvg, lossResult)
		score := scoreLoss
		if draw {
			score = scoreDraw
		}
		l = append(l, g.apply(p, rChange, dChange, score))
	}

	return w, l
}

// single runs one Glicko-2 rating period for a player entered at their team's
// average rating but their own deviation, against the virtual opponent team.
// Returns the rating and deviation deltas.
func (g *Glicko2) single(teamAvg, ownDeviation, oppAvg, oppDeviation float64, result glicko.MatchResult) (float64, float64) {
	player := glicko.NewPlayer(glicko.NewRating(teamAvg, ownDeviation, glicko.RATING_BASE_SIGMA))
	opponent := glicko.NewPlayer(glicko.NewRating(oppAvg, oppDeviation, glicko.RATING_BASE_SIGMA))

	period := glicko.NewRatingPeriod()
	period.AddMatch(player, opponent, result)
	period.Calculate()

	updated := player.Rating()
	return updated.R() - teamAvg, updated.Rd() - ownDeviation
}
