package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"pickup-rating/internal/config"
	"pickup-rating/internal/constants"
	"pickup-rating/internal/domain"
	"pickup-rating/internal/repository"
)

// LeaderboardService serves the read side: rankings, per-player pages and
// rating history.
type LeaderboardService struct {
	playerRepo  *repository.PlayerRepository
	historyRepo *repository.HistoryRepository
	logger      zerolog.Logger
}

func NewLeaderboardService(playerRepo *repository.PlayerRepository, historyRepo *repository.HistoryRepository, logger zerolog.Logger) *LeaderboardService {
	return &LeaderboardService{playerRepo: playerRepo, historyRepo: historyRepo, logger: logger}
}

// LeaderboardRow pairs a player's record with their rank name on the
// channel's ladder.
type LeaderboardRow struct {
	Position int                 `json:"position"`
	Rank     string              `json:"rank"`
	Player   domain.PlayerRecord `json:"player"`
}

// Leaderboard returns the channel's visible rated players, best first.
func (s *LeaderboardService) Leaderboard(ctx context.Context, settings *config.ChannelSettings, limit int) ([]LeaderboardRow, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if limit <= 0 || limit > constants.LeaderboardLimit {
		limit = constants.LeaderboardLimit
	}
	players, err := s.playerRepo.Leaderboard(ctx, settings.ChannelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	rows := make([]LeaderboardRow, 0, len(players))
	for i, p := range players {
		rows = append(rows, LeaderboardRow{
			Position: i + 1,
			Rank:     rankName(settings.Ranks, p.Rating),
			Player:   p,
		})
	}
	return rows, nil
}

// PlayerStats returns one player's record, defaults when they are unknown.
func (s *LeaderboardService) PlayerStats(ctx context.Context, settings *config.ChannelSettings, userID int64) (*domain.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	record, found, err := s.playerRepo.Get(ctx, settings.ChannelID, userID, settings.InitRating, settings.InitDeviation)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: player %d in channel %d", ErrPlayerNotFound, userID, settings.ChannelID)
	}
	return record, nil
}

// History returns a player's most recent ledger entries, newest first.
func (s *LeaderboardService) History(ctx context.Context, channelID, userID int64, limit int) ([]domain.RatingHistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if limit <= 0 || limit > constants.HistoryPageLimit {
		limit = constants.HistoryPageLimit
	}
	entries, err := s.historyRepo.ForPlayer(ctx, channelID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load rating history: %w", err)
	}
	return entries, nil
}

// rankName picks the highest rank whose cutoff the rating clears. Below the
// whole ladder the lowest rank applies.
func rankName(ranks []domain.Rank, ratingValue int) string {
	if len(ranks) == 0 {
		return ""
	}
	best := ranks[0]
	lowest := ranks[0]
	matched := false
	for _, r := range ranks {
		if r.Rating < lowest.Rating {
			lowest = r
		}
		if r.Rating <= ratingValue && (!matched || r.Rating > best.Rating) {
			best = r
			matched = true
		}
	}
	if !matched {
		return lowest.Name
	}
	return best.Name
}
