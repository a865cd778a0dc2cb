package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"pickup-rating/internal/domain"
)

type HistoryRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *HistoryRepository) Append(ctx context.Context, entry *domain.RatingHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertHistoryTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// ByMatch returns the ledger entries written for one match, keyed by player.
func (r *HistoryRepository) ByMatch(ctx context.Context, matchID int64) (map[int64]domain.RatingHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, channel_id, user_id, at, rating_before, rating_change, deviation_before, deviation_change, match_id, reason
		 FROM rating_history WHERE match_id = ?`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %w", err)
	}
	defer rows.Close()

	results := make(map[int64]domain.RatingHistoryEntry)
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		results[e.UserID] = e
	}
	return results, rows.Err()
}

// ForPlayer returns a player's most recent ledger entries, newest first.
func (r *HistoryRepository) ForPlayer(ctx context.Context, channelID, userID int64, limit int) ([]domain.RatingHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, channel_id, user_id, at, rating_before, rating_change, deviation_before, deviation_change, match_id, reason
		 FROM rating_history WHERE channel_id = ? AND user_id = ?
		 ORDER BY at DESC, rowid DESC LIMIT ?`,
		channelID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query player history: %w", err)
	}
	defer rows.Close()

	var results []domain.RatingHistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// HasLaterEntry reports whether the player has any rating-affecting entry
// recorded after the given one. Undo uses this to refuse rewinding history
// out of order. The ledger is append-only, so insertion order (rowid) is the
// order changes were applied in; timestamps alone cannot break ties between
// entries written within the same second.
func (r *HistoryRepository) HasLaterEntry(ctx context.Context, channelID, userID int64, entryID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rating_history
		 WHERE channel_id = ? AND user_id = ?
		   AND rowid > (SELECT rowid FROM rating_history WHERE id = ?)`,
		channelID, userID, entryID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check later history: %w", err)
	}
	return count > 0, nil
}

func (r *HistoryRepository) DeleteByChannel(ctx context.Context, channelID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rating_history WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("failed to delete channel history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) DeleteByPlayer(ctx context.Context, channelID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rating_history WHERE channel_id = ? AND user_id = ?`, channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete player history: %w", err)
	}
	return nil
}

const insertHistorySQL = `
INSERT INTO rating_history (id, channel_id, user_id, at, rating_before, rating_change, deviation_before, deviation_change, match_id, reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertHistoryTx(ctx context.Context, tx *sql.Tx, entry *domain.RatingHistoryEntry) error {
	id := entry.ID
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		entry.ID = id
	}

	var matchID any
	if entry.MatchID != nil {
		matchID = *entry.MatchID
	}

	_, err := tx.ExecContext(ctx, insertHistorySQL,
		id, entry.ChannelID, entry.UserID, entry.At.Unix(),
		entry.RatingBefore, entry.RatingChange, entry.DeviationBefore, entry.DeviationChange,
		matchID, entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rating history: %w", err)
	}
	return nil
}

func scanHistory(rows *sql.Rows) (domain.RatingHistoryEntry, error) {
	var (
		e       domain.RatingHistoryEntry
		at      int64
		matchID sql.NullInt64
	)
	err := rows.Scan(
		&e.ID, &e.ChannelID, &e.UserID, &at,
		&e.RatingBefore, &e.RatingChange, &e.DeviationBefore, &e.DeviationChange,
		&matchID, &e.Reason,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan rating history: %w", err)
	}
	e.At = time.Unix(at, 0)
	if matchID.Valid {
		id := matchID.Int64
		e.MatchID = &id
	}
	return e, nil
}
