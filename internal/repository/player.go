package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pickup-rating/internal/domain"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// GetPlayers returns the channel's records for the given ids in input order.
// Unknown ids resolve to fresh defaults without inserting anything; a NULL
// stored rating resolves to the initial values and a stored deviation is
// capped at the initial deviation on read.
func (r *PlayerRepository) GetPlayers(ctx context.Context, channelID int64, userIDs []int64, initRating, initDeviation int) ([]domain.PlayerRecord, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT channel_id, user_id, nick, is_hidden, rating, deviation, wins, losses, draws, streak, last_ranked_match_at
		 FROM players WHERE channel_id = ? AND user_id IN (%s)`,
		placeholders(len(userIDs)),
	)
	args := make([]any, 0, len(userIDs)+1)
	args = append(args, channelID)
	for _, id := range userIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]domain.PlayerRecord, len(userIDs))
	for rows.Next() {
		p, err := scanPlayer(rows, initRating, initDeviation)
		if err != nil {
			return nil, err
		}
		found[p.UserID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read players: %w", err)
	}

	results := make([]domain.PlayerRecord, 0, len(userIDs))
	for _, id := range userIDs {
		if p, ok := found[id]; ok {
			results = append(results, p)
			continue
		}
		results = append(results, domain.PlayerRecord{
			ChannelID: channelID,
			UserID:    id,
			Rating:    initRating,
			Deviation: initDeviation,
		})
	}
	return results, nil
}

func (r *PlayerRepository) Get(ctx context.Context, channelID, userID int64, initRating, initDeviation int) (*domain.PlayerRecord, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT channel_id, user_id, nick, is_hidden, rating, deviation, wins, losses, draws, streak, last_ranked_match_at
		 FROM players WHERE channel_id = ? AND user_id = ?`,
		channelID, userID,
	)
	p, err := scanPlayer(row, initRating, initDeviation)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (r *PlayerRepository) Upsert(ctx context.Context, p *domain.PlayerRecord) error {
	_, err := r.db.ExecContext(ctx, upsertPlayerSQL, upsertPlayerArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to upsert player %d/%d: %w", p.ChannelID, p.UserID, err)
	}
	return nil
}

// ApplyAdjustments persists unconditional rating changes (manual set) with
// their ledger entries in one transaction. Background jobs use
// ApplyGuardedAdjustments instead so they cannot clobber a concurrent
// settlement.
func (r *PlayerRepository) ApplyAdjustments(ctx context.Context, updates []domain.PlayerRecord, entries []domain.RatingHistoryEntry) error {
	if len(updates) == 0 && len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range updates {
		if _, err := tx.ExecContext(ctx, upsertPlayerSQL, upsertPlayerArgs(&updates[i])...); err != nil {
			return fmt.Errorf("failed to upsert player %d/%d: %w", updates[i].ChannelID, updates[i].UserID, err)
		}
	}
	for i := range entries {
		if err := insertHistoryTx(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Adjustment pairs a player update with the snapshot it was computed from
// and the ledger entry describing the change.
type Adjustment struct {
	Before domain.PlayerRecord
	After  domain.PlayerRecord
	Entry  domain.RatingHistoryEntry
}

// ApplyGuardedAdjustments persists a batch of rating adjustments, each
// conditioned on the player row still matching its Before snapshot. A row
// that changed since the snapshot was read (a settlement landing between the
// read and this write) is skipped along with its ledger entry instead of
// being overwritten. Returns the number of adjustments applied.
func (r *PlayerRepository) ApplyGuardedAdjustments(ctx context.Context, adjustments []Adjustment) (int, error) {
	if len(adjustments) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	applied := 0
	for i := range adjustments {
		a := &adjustments[i]
		res, err := tx.ExecContext(ctx,
			`UPDATE players SET rating = ?, deviation = ?
			 WHERE channel_id = ? AND user_id = ?
			   AND rating = ? AND deviation = ?
			   AND wins = ? AND losses = ? AND draws = ? AND streak = ?`,
			a.After.Rating, a.After.Deviation,
			a.Before.ChannelID, a.Before.UserID,
			a.Before.Rating, a.Before.Deviation,
			a.Before.Wins, a.Before.Losses, a.Before.Draws, a.Before.Streak,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to adjust player %d/%d: %w", a.Before.ChannelID, a.Before.UserID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read adjustment result: %w", err)
		}
		if n == 0 {
			r.logger.Warn().
				Int64("channel_id", a.Before.ChannelID).
				Int64("user_id", a.Before.UserID).
				Msg("player row changed since snapshot, skipping adjustment")
			continue
		}
		if err := insertHistoryTx(ctx, tx, &a.Entry); err != nil {
			return 0, err
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return applied, nil
}

// ResetRatings clears every player's rating and deviation back to unset and
// records the accompanying ledger entries atomically.
func (r *PlayerRepository) ResetRatings(ctx context.Context, channelID int64, entries []domain.RatingHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE players SET rating = NULL, deviation = NULL WHERE channel_id = ?`,
		channelID,
	); err != nil {
		return fmt.Errorf("failed to reset ratings: %w", err)
	}
	for i := range entries {
		if err := insertHistoryTx(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PlayerRepository) SetHidden(ctx context.Context, channelID, userID int64, hidden bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET is_hidden = ? WHERE channel_id = ? AND user_id = ?`,
		hidden, channelID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set hidden flag: %w", err)
	}
	return nil
}

// ListRated returns every player in the channel that has an assigned rating,
// with stored values as-is.
func (r *PlayerRepository) ListRated(ctx context.Context, channelID int64) ([]domain.PlayerRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel_id, user_id, nick, is_hidden, rating, deviation, wins, losses, draws, streak, last_ranked_match_at
		 FROM players WHERE channel_id = ? AND rating IS NOT NULL`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rated players: %w", err)
	}
	defer rows.Close()

	var results []domain.PlayerRecord
	for rows.Next() {
		p, err := scanPlayer(rows, 0, 0)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ListWithLastRanked returns every player in the channel along with the time
// of their most recent match-linked ledger entry. Players without any ranked
// history come back with a nil timestamp. Stored values are not capped here:
// decay needs the raw deviation to age it toward the initial value.
func (r *PlayerRepository) ListWithLastRanked(ctx context.Context, channelID int64) ([]domain.PlayerRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.channel_id, p.user_id, p.nick, p.is_hidden, p.rating, p.deviation,
		        p.wins, p.losses, p.draws, p.streak, tmp.at
		 FROM players AS p
		 LEFT JOIN (
		   SELECT MAX(h.at) AS at, h.user_id FROM rating_history AS h
		     WHERE h.channel_id = ? AND h.match_id IS NOT NULL
		     GROUP BY h.user_id
		 ) AS tmp ON p.user_id = tmp.user_id
		 WHERE p.channel_id = ? AND p.rating IS NOT NULL AND p.deviation IS NOT NULL`,
		channelID, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list players with last ranked match: %w", err)
	}
	defer rows.Close()

	var results []domain.PlayerRecord
	for rows.Next() {
		p, err := scanPlayer(rows, 0, 0)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// Leaderboard lists visible rated players by rating, best first.
func (r *PlayerRepository) Leaderboard(ctx context.Context, channelID int64, limit int) ([]domain.PlayerRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel_id, user_id, nick, is_hidden, rating, deviation, wins, losses, draws, streak, last_ranked_match_at
		 FROM players WHERE channel_id = ? AND rating IS NOT NULL AND is_hidden = 0
		 ORDER BY rating DESC LIMIT ?`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var results []domain.PlayerRecord
	for rows.Next() {
		p, err := scanPlayer(rows, 0, 0)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (r *PlayerRepository) DeleteByChannel(ctx context.Context, channelID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM players WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("failed to delete channel players: %w", err)
	}
	return nil
}

func (r *PlayerRepository) Delete(ctx context.Context, channelID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM players WHERE channel_id = ? AND user_id = ?`, channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	return nil
}

const upsertPlayerSQL = `
INSERT INTO players (channel_id, user_id, nick, is_hidden, rating, deviation, wins, losses, draws, streak, last_ranked_match_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (channel_id, user_id) DO UPDATE SET
    nick = excluded.nick,
    rating = excluded.rating,
    deviation = excluded.deviation,
    wins = excluded.wins,
    losses = excluded.losses,
    draws = excluded.draws,
    streak = excluded.streak,
    last_ranked_match_at = excluded.last_ranked_match_at`

func upsertPlayerArgs(p *domain.PlayerRecord) []any {
	var lastRanked any
	if p.LastRankedAt != nil {
		lastRanked = p.LastRankedAt.Unix()
	}
	return []any{
		p.ChannelID, p.UserID, p.Nick, p.IsHidden,
		p.Rating, p.Deviation, p.Wins, p.Losses, p.Draws, p.Streak, lastRanked,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner, initRating, initDeviation int) (domain.PlayerRecord, error) {
	var (
		p          domain.PlayerRecord
		rating     sql.NullInt64
		deviation  sql.NullInt64
		lastRanked sql.NullInt64
	)
	err := row.Scan(
		&p.ChannelID, &p.UserID, &p.Nick, &p.IsHidden,
		&rating, &deviation, &p.Wins, &p.Losses, &p.Draws, &p.Streak, &lastRanked,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, err
		}
		return p, fmt.Errorf("failed to scan player: %w", err)
	}

	if rating.Valid {
		p.Rating = int(rating.Int64)
		p.Deviation = int(deviation.Int64)
		if initDeviation > 0 && p.Deviation > initDeviation {
			p.Deviation = initDeviation
		}
	} else {
		p.Rating = initRating
		p.Deviation = initDeviation
	}
	if lastRanked.Valid {
		t := time.Unix(lastRanked.Int64, 0)
		p.LastRankedAt = &t
	}
	return p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
