package rating

import (
	"fmt"
	"math"

	"pickup-rating/internal/domain"
)

// Outcome scores as seen by a single player.
const (
	scoreLoss = -1
	scoreDraw = 0
	scoreWin  = 1
)

// System names accepted by New.
const (
	SystemFlat      = "flat"
	SystemGlicko2   = "glicko2"
	SystemTrueSkill = "trueskill"
	SystemQuidditch = "quidditch6v6"
)

// TeamMeta carries the draft metadata some strategies weight by. Only the
// quidditch system reads it.
type TeamMeta struct {
	DraftPositions map[int64]int
	Captains       map[int64]struct{}
}

// Settings is the per-channel rating configuration. Scale values are percent
// integers as stored in channel config (100 = neutral).
type Settings struct {
	InitRating      int  `json:"init_rating"`
	InitDeviation   int  `json:"init_deviation"`
	MinDeviation    int  `json:"min_deviation"`
	Scale           int  `json:"scale"`
	WinScale        int  `json:"win_scale"`
	LossScale       int  `json:"loss_scale"`
	DrawBonus       int  `json:"draw_bonus"`
	WinStreakBoost  bool `json:"ws_boost"`
	LossStreakBoost bool `json:"ls_boost"`
}

// Strategy rates one match outcome. Implementations take snapshots and return
// new snapshots; they never mutate their inputs and never touch storage.
type Strategy interface {
	Rate(winners, losers []domain.PlayerRecord, draw bool, winnerMeta, loserMeta TeamMeta) (w, l []domain.PlayerRecord)
}

// New selects a strategy by its configured system name.
func New(system string, s Settings) (Strategy, error) {
	switch system {
	case SystemFlat:
		return NewFlat(s), nil
	case SystemGlicko2:
		return NewGlicko2(s), nil
	case SystemTrueSkill:
		return NewTrueSkill(s), nil
	case SystemQuidditch:
		return NewQuidditch(s), nil
	default:
		return nil, fmt.Errorf("unknown rating system %q", system)
	}
}

// scaler is the post-processing shared by every strategy: outcome counters,
// streak bookkeeping, win/loss/draw scaling, streak boosts and the final
// clamps. Rounding is half away from zero (math.Round).
type scaler struct {
	initRating    int
	initDeviation int
	minDeviation  int
	scale         float64
	winScale      float64
	lossScale     float64
	drawBonus     float64
	wsBoost       bool
	lsBoost       bool

	// drawChange turns a raw change into the draw change. Flat replaces this
	// with a fixed-size variant.
	drawChange func(rChange float64) float64
}

func newScaler(s Settings) scaler {
	sc := scaler{
		initRating:    s.InitRating,
		initDeviation: s.InitDeviation,
		minDeviation:  s.MinDeviation,
		scale:         pct(s.Scale, 100),
		winScale:      pct(s.WinScale, 100),
		lossScale:     pct(s.LossScale, 100),
		drawBonus:     pct(s.DrawBonus, 0),
		wsBoost:       s.WinStreakBoost,
		lsBoost:       s.LossStreakBoost,
	}
	sc.drawChange = func(rChange float64) float64 {
		return rChange + math.Abs(rChange)*sc.drawBonus
	}
	return sc
}

func pct(v, fallback int) float64 {
	if v == 0 {
		v = fallback
	}
	return float64(v) / 100.0
}

// apply returns a copy of p with the outcome applied. The streak boost uses
// the streak value after this result, so counters update first.
func (s scaler) apply(p domain.PlayerRecord, rChange, dChange float64, score int) domain.PlayerRecord {
	switch score {
	case scoreLoss:
		rChange = rChange * s.lossScale * s.scale
		p.Losses++
		if p.Streak >= 0 {
			p.Streak = -1
		} else {
			p.Streak--
		}
		if s.lsBoost && p.Streak < -2 {
			rChange *= math.Min(math.Abs(float64(p.Streak)), 6) / 2
		}
	case scoreDraw:
		rChange = s.drawChange(rChange) * s.scale
		p.Draws++
		p.Streak = 0
	case scoreWin:
		rChange = rChange * s.winScale * s.scale
		p.Wins++
		if p.Streak <= 0 {
			p.Streak = 1
		} else {
			p.Streak++
		}
		if s.wsBoost && p.Streak > 2 {
			rChange *= math.Min(float64(p.Streak), 6) / 2
		}
	}

	p.Rating = maxInt(0, int(math.Round(float64(p.Rating)+rChange)))
	p.Deviation = maxInt(s.minDeviation, int(math.Round(float64(p.Deviation)+dChange)))
	return p
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func teamAverages(players []domain.PlayerRecord) (rating, deviation float64) {
	if len(players) == 0 {
		return 0, 0
	}
	var r, d int
	for _, p := range players {
		r += p.Rating
		d += p.Deviation
	}
	return float64(r) / float64(len(players)), float64(d) / float64(len(players))
}
