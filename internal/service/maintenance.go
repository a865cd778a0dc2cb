package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pickup-rating/internal/config"
	"pickup-rating/internal/constants"
	"pickup-rating/internal/domain"
	"pickup-rating/internal/repository"
)

const (
	reasonDecay = "inactivity rating decay"
	reasonSnap  = "ratings snap"
	reasonReset = "ratings reset"
)

// MaintenanceService covers the administrative rating operations: weekly
// decay, rank snapping, resets and manual rating assignment. Every change
// goes through the same history ledger as match settlement.
type MaintenanceService struct {
	playerRepo   *repository.PlayerRepository
	historyRepo  *repository.HistoryRepository
	matchRepo    *repository.MatchRepository
	settingsRepo *repository.SettingsRepository
	logger       zerolog.Logger
}

func NewMaintenanceService(playerRepo *repository.PlayerRepository, historyRepo *repository.HistoryRepository, matchRepo *repository.MatchRepository, settingsRepo *repository.SettingsRepository, logger zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		playerRepo:   playerRepo,
		historyRepo:  historyRepo,
		matchRepo:    matchRepo,
		settingsRepo: settingsRepo,
		logger:       logger,
	}
}

// ApplyDecay ages out one channel's inactive players: deviation climbs back
// toward the initial value and rating drops toward the nearest rank threshold
// at or below it, never past it. Players whose last ranked match is within
// the inactivity window, or who never played a ranked match, are left alone.
// Returns the number of players changed.
func (s *MaintenanceService) ApplyDecay(ctx context.Context, settings *config.ChannelSettings) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	players, err := s.playerRepo.ListWithLastRanked(ctx, settings.ChannelID)
	if err != nil {
		return 0, err
	}

	thresholds := settings.Thresholds()
	now := time.Now()
	cutoff := now.Add(-constants.InactivityWindow)

	var adjustments []repository.Adjustment
	for _, p := range players {
		if p.LastRankedAt == nil || !p.LastRankedAt.Before(cutoff) {
			continue
		}

		newDeviation := p.Deviation + settings.DecayDeviation
		if newDeviation > settings.InitDeviation {
			newDeviation = settings.InitDeviation
		}

		newRating := p.Rating
		if floor := floorThreshold(thresholds, p.Rating); floor != 0 {
			newRating = maxInt(floor, p.Rating-settings.DecayRating)
		}

		if newRating == p.Rating && newDeviation == p.Deviation {
			continue
		}

		after := p
		after.Rating = newRating
		after.Deviation = newDeviation
		adjustments = append(adjustments, repository.Adjustment{
			Before: p,
			After:  after,
			Entry: domain.RatingHistoryEntry{
				ChannelID:       settings.ChannelID,
				UserID:          p.UserID,
				At:              now,
				RatingBefore:    p.Rating,
				RatingChange:    newRating - p.Rating,
				DeviationBefore: p.Deviation,
				DeviationChange: newDeviation - p.Deviation,
				Reason:          reasonDecay,
			},
		})
	}

	if len(adjustments) == 0 {
		return 0, nil
	}
	// Guarded: a settlement committing for the same player after the listing
	// above must win; its rows are skipped instead of overwritten.
	applied, err := s.playerRepo.ApplyGuardedAdjustments(ctx, adjustments)
	if err != nil {
		return 0, fmt.Errorf("failed to apply decay for channel %d: %w", settings.ChannelID, err)
	}

	s.logger.Info().
		Int64("channel_id", settings.ChannelID).
		Int("players", applied).
		Int("skipped", len(adjustments)-applied).
		Msg("applied inactivity rating decay")
	return applied, nil
}

// DecayAll runs decay over every configured channel, pausing between
// channels to bound storage load.
func (s *MaintenanceService) DecayAll(ctx context.Context) error {
	channels, err := s.settingsRepo.List(ctx)
	if err != nil {
		return err
	}

	s.logger.Info().Int("channels", len(channels)).Msg("starting weekly rating decay")
	for i := range channels {
		if _, err := s.ApplyDecay(ctx, &channels[i]); err != nil {
			s.logger.Error().Err(err).
				Int64("channel_id", channels[i].ChannelID).
				Msg("decay failed for channel, continuing")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(constants.DecayChannelPause):
		}
	}
	return nil
}

// SnapRatings forces every rated player's rating onto the channel's rank
// ladder: down to the nearest threshold at or below, or up to the lowest
// threshold for players below the ladder entirely.
func (s *MaintenanceService) SnapRatings(ctx context.Context, settings *config.ChannelSettings) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	thresholds := settings.Thresholds()
	if len(thresholds) == 0 {
		return 0, fmt.Errorf("%w: channel %d has no rank thresholds", ErrInvalidConfig, settings.ChannelID)
	}
	lowest := thresholds[0]
	for _, t := range thresholds {
		if t < lowest {
			lowest = t
		}
	}

	players, err := s.playerRepo.ListRated(ctx, settings.ChannelID)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	var adjustments []repository.Adjustment
	for _, p := range players {
		newRating := floorThreshold(thresholds, p.Rating)
		if newRating == 0 {
			newRating = lowest
		}
		after := p
		after.Rating = newRating
		adjustments = append(adjustments, repository.Adjustment{
			Before: p,
			After:  after,
			Entry: domain.RatingHistoryEntry{
				ChannelID:       settings.ChannelID,
				UserID:          p.UserID,
				At:              now,
				RatingBefore:    p.Rating,
				RatingChange:    newRating - p.Rating,
				DeviationBefore: p.Deviation,
				Reason:          reasonSnap,
			},
		})
	}

	if len(adjustments) == 0 {
		return 0, nil
	}
	applied, err := s.playerRepo.ApplyGuardedAdjustments(ctx, adjustments)
	if err != nil {
		return 0, fmt.Errorf("failed to snap ratings for channel %d: %w", settings.ChannelID, err)
	}

	s.logger.Info().
		Int64("channel_id", settings.ChannelID).
		Int("players", applied).
		Msg("snapped ratings to rank thresholds")
	return applied, nil
}

// ResetRatings clears every player's rating and deviation in the channel,
// recording a ledger entry for each player that actually deviated from the
// initial values. Counters and streaks survive a reset.
func (s *MaintenanceService) ResetRatings(ctx context.Context, settings *config.ChannelSettings) error {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	players, err := s.playerRepo.ListRated(ctx, settings.ChannelID)
	if err != nil {
		return err
	}

	now := time.Now()
	var entries []domain.RatingHistoryEntry
	for _, p := range players {
		if p.Rating == settings.InitRating && p.Deviation == settings.InitDeviation {
			continue
		}
		entries = append(entries, domain.RatingHistoryEntry{
			ChannelID:       settings.ChannelID,
			UserID:          p.UserID,
			At:              now,
			RatingBefore:    p.Rating,
			RatingChange:    settings.InitRating - p.Rating,
			DeviationBefore: p.Deviation,
			DeviationChange: settings.InitDeviation - p.Deviation,
			Reason:          reasonReset,
		})
	}

	if err := s.playerRepo.ResetRatings(ctx, settings.ChannelID, entries); err != nil {
		return fmt.Errorf("failed to reset ratings for channel %d: %w", settings.ChannelID, err)
	}
	s.logger.Info().
		Int64("channel_id", settings.ChannelID).
		Int("players", len(players)).
		Msg("reset channel ratings")
	return nil
}

// SetRating assigns a player's rating and optionally deviation by admin
// fiat. A penalty is subtracted from the requested (or current) rating, and
// the result never drops below the minimum assignable rating. The player row
// is created lazily when missing.
func (s *MaintenanceService) SetRating(ctx context.Context, settings *config.ChannelSettings, userID int64, nick string, newRating, newDeviation *int, penalty int, reason string) (*domain.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	record, found, err := s.playerRepo.Get(ctx, settings.ChannelID, userID, settings.InitRating, settings.InitDeviation)
	if err != nil {
		return nil, err
	}
	if !found {
		record = &domain.PlayerRecord{
			ChannelID: settings.ChannelID,
			UserID:    userID,
			Nick:      nick,
			Rating:    settings.InitRating,
			Deviation: settings.InitDeviation,
		}
	}
	if nick != "" {
		record.Nick = nick
	}

	oldRating := record.Rating
	oldDeviation := record.Deviation

	target := oldRating
	if newRating != nil {
		target = *newRating
	}
	target = maxInt(target-penalty, constants.SetRatingMinRating)

	deviationChange := 0
	if newDeviation != nil {
		deviationChange = *newDeviation - oldDeviation
		record.Deviation = *newDeviation
	}
	record.Rating = target

	entry := domain.RatingHistoryEntry{
		ChannelID:       settings.ChannelID,
		UserID:          userID,
		At:              time.Now(),
		RatingBefore:    oldRating,
		RatingChange:    target - oldRating,
		DeviationBefore: oldDeviation,
		DeviationChange: deviationChange,
		Reason:          reason,
	}
	if err := s.playerRepo.ApplyAdjustments(ctx, []domain.PlayerRecord{*record}, []domain.RatingHistoryEntry{entry}); err != nil {
		return nil, fmt.Errorf("failed to set rating for player %d: %w", userID, err)
	}

	s.logger.Info().
		Int64("channel_id", settings.ChannelID).
		Int64("user_id", userID).
		Int("rating", record.Rating).
		Int("penalty", penalty).
		Msg("rating set by admin")
	return record, nil
}

// HidePlayer toggles leaderboard visibility without touching the rating.
func (s *MaintenanceService) HidePlayer(ctx context.Context, channelID, userID int64, hide bool) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.playerRepo.SetHidden(ctx, channelID, userID, hide)
}

// ResetPlayer removes one player's record and history entirely.
func (s *MaintenanceService) ResetPlayer(ctx context.Context, channelID, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if err := s.historyRepo.DeleteByPlayer(ctx, channelID, userID); err != nil {
		return err
	}
	if err := s.playerRepo.Delete(ctx, channelID, userID); err != nil {
		return err
	}
	s.logger.Info().Int64("channel_id", channelID).Int64("user_id", userID).Msg("player stats erased")
	return nil
}

// ResetChannel wipes all rating, history and match data for a channel.
func (s *MaintenanceService) ResetChannel(ctx context.Context, channelID int64) error {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if err := s.matchRepo.DeleteByChannel(ctx, channelID); err != nil {
		return err
	}
	if err := s.historyRepo.DeleteByChannel(ctx, channelID); err != nil {
		return err
	}
	if err := s.playerRepo.DeleteByChannel(ctx, channelID); err != nil {
		return err
	}
	s.logger.Info().Int64("channel_id", channelID).Msg("channel stats erased")
	return nil
}

// floorThreshold returns the highest threshold at or below rating, or 0 when
// the rating sits below the whole ladder.
func floorThreshold(thresholds []int, rating int) int {
	best := 0
	for _, t := range thresholds {
		if t <= rating && t > best {
			best = t
		}
	}
	return best
}
