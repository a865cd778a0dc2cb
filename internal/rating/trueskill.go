package rating

import (
	"github.com/intinig/go-openskill/rating"
	"github.com/intinig/go-openskill/types"
	"go.uber.org/thriftrw/ptr"

	"pickup-rating/internal/domain"
)

// TrueSkill runs a team-vs-team Bayesian update with each player's own
// (mu, sigma). Beta and tau derive from the channel's initial deviation the
// same way the flat Elo-style systems derive their constants from it:
// beta = init_deviation/2, tau = init_deviation/100.
type TrueSkill struct {
	scaler
	beta float64
	tau  float64
}

func NewTrueSkill(s Settings) *TrueSkill {
	return &TrueSkill{
		scaler: newScaler(s),
		beta:   float64(s.InitDeviation / 2),
		tau:    float64(s.InitDeviation / 100),
	}
}

func (t *TrueSkill) Rate(winners, losers []domain.PlayerRecord, draw bool, _, _ TeamMeta) ([]domain.PlayerRecord, []domain.PlayerRecord) {
	teams := []types.Team{
		t.team(winners),
		t.team(losers),
	}

	scores := []int{1, 0}
	if draw {
		scores = []int{1, 1}
	}

	teams = rating.Rate(teams, &types.OpenSkillOptions{
		Beta:  ptr.Float64(t.beta),
		Tau:   ptr.Float64(t.tau),
		Score: scores,
	})

	w := make([]domain.PlayerRecord, 0, len(winners))
	for i, p := range winners {
		res := teams[0][i]
		score := scoreWin
		if draw {
			score = scoreDraw
		}
		w = append(w, t.apply(p, res.Mu-float64(p.Rating), res.Sigma-float64(p.Deviation), score))
	}

	l := make([]domain.PlayerRecord, 0, len(losers))
	for i, p := range losers {
		res := teams[1][i]
		score := scoreLoss
		if draw {
			score = scoreDraw
		}
		l = append(l, t.apply(p, res.Mu-float64(p.Rating), res.Sigma-float64(p.Deviation), score))
	}

	return w, l
}

func (t *TrueSkill) team(players []domain.PlayerRecord) types.Team {
	team := make(types.Team, 0, len(players))
	for _, p := range players {
		team = append(team, rating.NewWithOptions(&types.OpenSkillOptions{
			Mu:    ptr.Float64(float64(p.Rating)),
			Sigma: ptr.Float64(float64(p.Deviation)),
		}))
	}
	return team
}
