package constants

import "time"

const (
	DatabaseTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// InactivityWindow is how long a player must go without a ranked match
	// before the weekly decay touches their rating.
	InactivityWindow = 7 * 24 * time.Hour
	// DecayChannelPause throttles the decay job between channels to bound
	// storage load.
	DecayChannelPause = 1 * time.Second
)

const (
	LeaderboardLimit   = 10
	HistoryPageLimit   = 50
	SetRatingMinRating = 1
)
