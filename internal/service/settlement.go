package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pickup-rating/internal/config"
	"pickup-rating/internal/constants"
	"pickup-rating/internal/domain"
	"pickup-rating/internal/rating"
	"pickup-rating/internal/repository"
)

// SettlementService applies one match outcome to every participant's rating
// as a single logical transaction. The caller must serialize settlements per
// channel; the service performs no locking of its own.
type SettlementService struct {
	playerRepo  *repository.PlayerRepository
	historyRepo *repository.HistoryRepository
	matchRepo   *repository.MatchRepository
	logger      zerolog.Logger
}

func NewSettlementService(playerRepo *repository.PlayerRepository, historyRepo *repository.HistoryRepository, matchRepo *repository.MatchRepository, logger zerolog.Logger) *SettlementService {
	return &SettlementService{playerRepo: playerRepo, historyRepo: historyRepo, matchRepo: matchRepo, logger: logger}
}

// SettlementResult carries the consolidated before/after snapshots for the
// caller to render.
type SettlementResult struct {
	Before map[int64]domain.PlayerRecord
	After  map[int64]domain.PlayerRecord
}

// RegisterMatchRanked settles a ranked match: resolves in-progress
// substitutions, fetches player snapshots, runs the channel's rating
// strategy and persists every player update and ledger entry atomically.
func (s *SettlementService) RegisterMatchRanked(ctx context.Context, settings *config.ChannelSettings, m *domain.Match, subs []domain.Substitution) (*SettlementResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	for i := range m.Teams {
		if len(m.Teams[i].Players) == 0 {
			return nil, fmt.Errorf("%w: match %d team %d has no players", ErrInvariant, m.ID, i)
		}
	}

	strategy, err := rating.New(settings.System, settings.Settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s.logger.Info().
		Int64("match_id", m.ID).
		Int64("channel_id", m.ChannelID).
		Str("queue", m.QueueName).
		Str("system", settings.System).
		Msg("settling ranked match")

	// Redirect in-progress substitutes on the losing team: the original
	// player absorbs the computed loss, the substitute keeps their rating.
	ratedIDs := [2][]int64{
		append([]int64(nil), m.Teams[0].Players...),
		append([]int64(nil), m.Teams[1].Players...),
	}
	redirects := make(map[int64]int64) // substitute -> original
	if losing := m.LosingTeam(); losing >= 0 {
		for _, sub := range subs {
			if sub.Status != domain.SubStatusInProgress {
				continue
			}
			for i, id := range ratedIDs[losing] {
				if id == sub.SubstituteID {
					redirects[sub.SubstituteID] = sub.OriginalID
					ratedIDs[losing][i] = sub.OriginalID
					s.logger.Debug().
						Int64("match_id", m.ID).
						Int64("substitute_id", sub.SubstituteID).
						Int64("original_id", sub.OriginalID).
						Msg("redirecting substitute loss to original player")
				}
			}
		}
	}

	// Substitutes swapped out above still need their unchanged snapshot for
	// reporting and the zero-change ledger entry.
	subIDs := make([]int64, 0, len(redirects))
	for subID := range redirects {
		subIDs = append(subIDs, subID)
	}

	var alphaRatings, betaRatings, subRatings []domain.PlayerRecord
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		alphaRatings, err = s.playerRepo.GetPlayers(gCtx, m.ChannelID, ratedIDs[0], settings.InitRating, settings.InitDeviation)
		return err
	})
	g.Go(func() error {
		var err error
		betaRatings, err = s.playerRepo.GetPlayers(gCtx, m.ChannelID, ratedIDs[1], settings.InitRating, settings.InitDeviation)
		return err
	})
	if len(subIDs) > 0 {
		g.Go(func() error {
			var err error
			subRatings, err = s.playerRepo.GetPlayers(gCtx, m.ChannelID, subIDs, settings.InitRating, settings.InitDeviation)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Int64("match_id", m.ID).Msg("failed to fetch player snapshots")
		return nil, fmt.Errorf("failed to fetch player snapshots: %w", err)
	}

	before := make(map[int64]domain.PlayerRecord)
	for _, p := range alphaRatings {
		before[p.UserID] = p
	}
	for _, p := range betaRatings {
		before[p.UserID] = p
	}
	for _, p := range subRatings {
		before[p.UserID] = p
	}

	alphaMeta := teamMeta(m, 0)
	betaMeta := teamMeta(m, 1)

	var ratedAlpha, ratedBeta []domain.PlayerRecord
	switch {
	case m.Winner == nil:
		ratedAlpha, ratedBeta = strategy.Rate(alphaRatings, betaRatings, true, alphaMeta, betaMeta)
	case *m.Winner == 0:
		ratedAlpha, ratedBeta = strategy.Rate(alphaRatings, betaRatings, false, alphaMeta, betaMeta)
	default:
		ratedBeta, ratedAlpha = strategy.Rate(betaRatings, alphaRatings, false, betaMeta, alphaMeta)
	}

	after := make(map[int64]domain.PlayerRecord)
	for _, p := range ratedAlpha {
		after[p.UserID] = p
	}
	for _, p := range ratedBeta {
		after[p.UserID] = p
	}
	// Redirected substitutes are reported unchanged.
	for subID := range redirects {
		after[subID] = before[subID]
	}

	now := m.At
	if now.IsZero() {
		now = time.Now()
	}

	updates, entries := buildSettlementWrites(m, redirects, before, after, now)

	if err := s.matchRepo.RecordRanked(ctx, m, updates, entries); err != nil {
		s.logger.Error().Err(err).
			Int64("match_id", m.ID).
			Int64("channel_id", m.ChannelID).
			Msg("settlement transaction failed, no writes applied")
		return nil, fmt.Errorf("failed to persist settlement for match %d: %w", m.ID, err)
	}

	s.logger.Info().
		Int64("match_id", m.ID).
		Int("players", len(entries)).
		Msg("ranked match settled")

	return &SettlementResult{Before: before, After: after}, nil
}

// buildSettlementWrites turns the before/after snapshots into the persisted
// player updates and ledger entries for one settled match.
func buildSettlementWrites(m *domain.Match, redirects map[int64]int64, before, after map[int64]domain.PlayerRecord, now time.Time) ([]domain.PlayerRecord, []domain.RatingHistoryEntry) {
	var updates []domain.PlayerRecord
	var entries []domain.RatingHistoryEntry

	appendWrite := func(userID int64, record domain.PlayerRecord, reason string) {
		prev := before[userID]
		record.LastRankedAt = &now
		updates = append(updates, record)
		matchID := m.ID
		entries = append(entries, domain.RatingHistoryEntry{
			ChannelID:       m.ChannelID,
			UserID:          userID,
			At:              now,
			RatingBefore:    prev.Rating,
			RatingChange:    record.Rating - prev.Rating,
			DeviationBefore: prev.Deviation,
			DeviationChange: record.Deviation - prev.Deviation,
			MatchID:         &matchID,
			Reason:          reason,
		})
	}

	for team := range m.Teams {
		for _, userID := range m.Teams[team].Players {
			if originalID, ok := redirects[userID]; ok {
				// The substitute keeps their pre-match values; the original
				// player takes the computed loss under a tagged reason.
				appendWrite(userID, before[userID], m.QueueName)
				appendWrite(originalID, after[originalID], fmt.Sprintf("%s (substitute)", m.QueueName))
				continue
			}
			record, ok := after[userID]
			if !ok {
				record = before[userID]
			}
			appendWrite(userID, record, m.QueueName)
		}
	}
	return updates, entries
}

// RegisterMatchUnranked records the match and roster rows without touching
// rating state.
func (s *SettlementService) RegisterMatchUnranked(ctx context.Context, m *domain.Match) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	for i := range m.Teams {
		if len(m.Teams[i].Players) == 0 {
			return fmt.Errorf("%w: match %d team %d has no players", ErrInvariant, m.ID, i)
		}
	}

	if err := s.matchRepo.RecordUnranked(ctx, m); err != nil {
		return fmt.Errorf("failed to record unranked match %d: %w", m.ID, err)
	}
	s.logger.Info().Int64("match_id", m.ID).Int64("channel_id", m.ChannelID).Msg("unranked match recorded")
	return nil
}

// UndoMatch reverses a previously settled match using the ledger. Returns
// false when the match is unknown. A ranked undo is rejected when any
// affected player has a later rating change; arithmetic rollback is only
// sound against the top of each player's history.
func (s *SettlementService) UndoMatch(ctx context.Context, settings *config.ChannelSettings, matchID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	match, found, err := s.matchRepo.Get(ctx, matchID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if !match.Ranked {
		if err := s.matchRepo.DeleteRows(ctx, matchID); err != nil {
			return false, err
		}
		s.logger.Info().Int64("match_id", matchID).Msg("unranked match undone")
		return true, nil
	}

	participants, err := s.matchRepo.Participants(ctx, matchID)
	if err != nil {
		return false, err
	}
	history, err := s.historyRepo.ByMatch(ctx, matchID)
	if err != nil {
		return false, err
	}

	for userID, entry := range history {
		later, err := s.historyRepo.HasLaterEntry(ctx, match.ChannelID, userID, entry.ID)
		if err != nil {
			return false, err
		}
		if later {
			return false, fmt.Errorf("%w: match %d, player %d", ErrUndoConflict, matchID, userID)
		}
	}

	teams := make(map[int64]int, len(participants))
	for _, p := range participants {
		teams[p.UserID] = p.Team
	}
	ids := make([]int64, 0, len(history))
	for userID := range history {
		ids = append(ids, userID)
	}

	players, err := s.playerRepo.GetPlayers(ctx, match.ChannelID, ids, settings.InitRating, settings.InitDeviation)
	if err != nil {
		return false, err
	}

	restored := make([]domain.PlayerRecord, 0, len(players))
	for _, p := range players {
		entry := history[p.UserID]

		team, onRoster := teams[p.UserID]
		switch {
		case !onRoster:
			// Ledger entry without a roster row: the original player of an
			// in-progress substitution, who absorbed a loss.
			p.Losses = maxInt(p.Losses-1, 0)
		case match.Winner == nil:
			p.Draws = maxInt(p.Draws-1, 0)
		case *match.Winner == team:
			p.Wins = maxInt(p.Wins-1, 0)
		default:
			p.Losses = maxInt(p.Losses-1, 0)
		}

		p.Rating = maxInt(p.Rating-entry.RatingChange, 0)
		p.Deviation = maxInt(p.Deviation-entry.DeviationChange, 0)
		restored = append(restored, p)
	}

	if err := s.matchRepo.ApplyUndo(ctx, matchID, restored); err != nil {
		s.logger.Error().Err(err).Int64("match_id", matchID).Msg("undo transaction failed, no writes applied")
		return false, err
	}

	s.logger.Info().Int64("match_id", matchID).Int("players", len(restored)).Msg("ranked match undone")
	return true, nil
}

func teamMeta(m *domain.Match, team int) rating.TeamMeta {
	meta := rating.TeamMeta{
		DraftPositions: m.DraftPositions,
		Captains:       make(map[int64]struct{}),
	}
	for _, id := range m.Teams[team].Players {
		if _, ok := m.Captains[id]; ok {
			meta.Captains[id] = struct{}{}
		}
	}
	return meta
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
