package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"pickup-rating/internal/domain"
	"pickup-rating/internal/rating"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:     getEnv("DB_PATH", "pickup.db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ChannelSettings is one channel's rating configuration: the strategy
// selection, its tuning knobs, the rank ladder used by decay and snap, and the
// weekly decay amounts.
type ChannelSettings struct {
	ChannelID int64  `json:"channel_id"`
	System    string `json:"system"`
	rating.Settings

	Ranks          []domain.Rank `json:"ranks"`
	DecayRating    int           `json:"decay_rating"`
	DecayDeviation int           `json:"decay_deviation"`
}

// DefaultChannelSettings mirrors the historical queue-channel defaults.
func DefaultChannelSettings(channelID int64) ChannelSettings {
	return ChannelSettings{
		ChannelID: channelID,
		System:    rating.SystemFlat,
		Settings: rating.Settings{
			InitRating:    1500,
			InitDeviation: 300,
			MinDeviation:  0,
			Scale:         100,
			WinScale:      100,
			LossScale:     100,
			DrawBonus:     0,
		},
		DecayRating:    15,
		DecayDeviation: 30,
	}
}

// Validate reports the first user-correctable problem with the settings.
func (s ChannelSettings) Validate() error {
	if _, err := rating.New(s.System, s.Settings); err != nil {
		return err
	}
	if s.InitRating < 0 {
		return fmt.Errorf("init_rating must be non-negative, got %d", s.InitRating)
	}
	if s.InitDeviation <= 0 {
		return fmt.Errorf("init_deviation must be positive, got %d", s.InitDeviation)
	}
	if s.MinDeviation < 0 || s.MinDeviation > s.InitDeviation {
		return fmt.Errorf("min_deviation must be within [0, init_deviation], got %d", s.MinDeviation)
	}
	for _, v := range []struct {
		name  string
		value int
	}{
		{"scale", s.Scale},
		{"win_scale", s.WinScale},
		{"loss_scale", s.LossScale},
	} {
		if v.value < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", v.name, v.value)
		}
	}
	for i, r := range s.Ranks {
		if r.Rating < 0 {
			return fmt.Errorf("rank %d (%s) has negative rating cutoff %d", i, r.Name, r.Rating)
		}
	}
	return nil
}

// Thresholds returns the non-zero rank cutoffs used by decay and snap.
func (s ChannelSettings) Thresholds() []int {
	out := make([]int, 0, len(s.Ranks))
	for _, r := range s.Ranks {
		if r.Rating != 0 {
			out = append(out, r.Rating)
		}
	}
	return out
}

var Module = fx.Provide(Load)
