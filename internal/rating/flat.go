package rating

import (
	"pickup-rating/internal/domain"
)

const flatChange = 10

// Flat awards a fixed ±10 regardless of rating difference.
type Flat struct {
	scaler
}

func NewFlat(s Settings) *Flat {
	f := &Flat{scaler: newScaler(s)}
	// A flat draw pays out a fixed share of the flat change instead of a
	// bonus on top of a zero change.
	f.scaler.drawChange = func(float64) float64 {
		return flatChange * f.scaler.drawBonus
	}
	return f
}

func (f *Flat) Rate(winners, losers []domain.PlayerRecord, draw bool, _, _ TeamMeta) ([]domain.PlayerRecord, []domain.PlayerRecord) {
	w := make([]domain.PlayerRecord, 0, len(winners))
	l := make([]domain.PlayerRecord, 0, len(losers))

	if draw {
		for _, p := range winners {
			w = append(w, f.apply(p, 0, 0, scoreDraw))
		}
		for _, p := range losers {
			l = append(l, f.apply(p, 0, 0, scoreDraw))
		}
		return w, l
	}

	for _, p := range winners {
		w = append(w, f.apply(p, flatChange, 0, scoreWin))
	}
	for _, p := range losers {
		l = append(l, f.apply(p, -flatChange, 0, scoreLoss))
	}
	return w, l
}
