package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"pickup-rating/internal/config"
)

// SettingsRepository stores per-channel rating configuration. The rank ladder
// is kept as a JSON column since it is only ever read and written whole.
type SettingsRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSettingsRepository(sqlDB *sql.DB, logger zerolog.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *SettingsRepository) Get(ctx context.Context, channelID int64) (*config.ChannelSettings, bool, error) {
	var (
		s     config.ChannelSettings
		ranks string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT channel_id, system, init_rating, init_deviation, min_deviation, scale, win_scale, loss_scale,
		        draw_bonus, ws_boost, ls_boost, decay_rating, decay_deviation, ranks
		 FROM channel_settings WHERE channel_id = ?`,
		channelID,
	).Scan(
		&s.ChannelID, &s.System, &s.InitRating, &s.InitDeviation, &s.MinDeviation,
		&s.Scale, &s.WinScale, &s.LossScale, &s.DrawBonus,
		&s.WinStreakBoost, &s.LossStreakBoost, &s.DecayRating, &s.DecayDeviation, &ranks,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query channel settings: %w", err)
	}

	if err := json.Unmarshal([]byte(ranks), &s.Ranks); err != nil {
		return nil, false, fmt.Errorf("malformed rank ladder for channel %d: %w", channelID, err)
	}
	return &s, true, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, s *config.ChannelSettings) error {
	ranks, err := json.Marshal(s.Ranks)
	if err != nil {
		return fmt.Errorf("failed to encode rank ladder: %w", err)
	}
	if s.Ranks == nil {
		ranks = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO channel_settings (channel_id, system, init_rating, init_deviation, min_deviation, scale, win_scale,
		                               loss_scale, draw_bonus, ws_boost, ls_boost, decay_rating, decay_deviation, ranks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (channel_id) DO UPDATE SET
		     system = excluded.system,
		     init_rating = excluded.init_rating,
		     init_deviation = excluded.init_deviation,
		     min_deviation = excluded.min_deviation,
		     scale = excluded.scale,
		     win_scale = excluded.win_scale,
		     loss_scale = excluded.loss_scale,
		     draw_bonus = excluded.draw_bonus,
		     ws_boost = excluded.ws_boost,
		     ls_boost = excluded.ls_boost,
		     decay_rating = excluded.decay_rating,
		     decay_deviation = excluded.decay_deviation,
		     ranks = excluded.ranks`,
		s.ChannelID, s.System, s.InitRating, s.InitDeviation, s.MinDeviation,
		s.Scale, s.WinScale, s.LossScale, s.DrawBonus,
		s.WinStreakBoost, s.LossStreakBoost, s.DecayRating, s.DecayDeviation, string(ranks),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert channel settings: %w", err)
	}
	return nil
}

func (r *SettingsRepository) List(ctx context.Context) ([]config.ChannelSettings, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel_id, system, init_rating, init_deviation, min_deviation, scale, win_scale, loss_scale,
		        draw_bonus, ws_boost, ls_boost, decay_rating, decay_deviation, ranks
		 FROM channel_settings ORDER BY channel_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel settings: %w", err)
	}
	defer rows.Close()

	var results []config.ChannelSettings
	for rows.Next() {
		var (
			s     config.ChannelSettings
			ranks string
		)
		err := rows.Scan(
			&s.ChannelID, &s.System, &s.InitRating, &s.InitDeviation, &s.MinDeviation,
			&s.Scale, &s.WinScale, &s.LossScale, &s.DrawBonus,
			&s.WinStreakBoost, &s.LossStreakBoost, &s.DecayRating, &s.DecayDeviation, &ranks,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel settings: %w", err)
		}
		if err := json.Unmarshal([]byte(ranks), &s.Ranks); err != nil {
			return nil, fmt.Errorf("malformed rank ladder for channel %d: %w", s.ChannelID, err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

func (r *SettingsRepository) Delete(ctx context.Context, channelID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM channel_settings WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("failed to delete channel settings: %w", err)
	}
	return nil
}
