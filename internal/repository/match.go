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

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Participant is one roster slot of a recorded match.
type Participant struct {
	UserID int64
	Nick   string
	Team   int
}

// MatchRow is the stored match header.
type MatchRow struct {
	ID        int64
	ChannelID int64
	QueueName string
	At        time.Time
	Ranked    bool
	Winner    *int
}

// NextMatchID returns the next free match id. Ids are global across
// channels and increase monotonically.
func (r *MatchRepository) NextMatchID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(match_id) FROM matches`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to read match id counter: %w", err)
	}
	if maxID.Valid {
		return maxID.Int64 + 1, nil
	}
	return 0, nil
}

func (r *MatchRepository) Get(ctx context.Context, matchID int64) (*MatchRow, bool, error) {
	var (
		row    MatchRow
		at     int64
		winner sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT match_id, channel_id, queue_name, at, ranked, winner FROM matches WHERE match_id = ?`,
		matchID,
	).Scan(&row.ID, &row.ChannelID, &row.QueueName, &at, &row.Ranked, &winner)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query match: %w", err)
	}
	row.At = time.Unix(at, 0)
	if winner.Valid {
		w := int(winner.Int64)
		row.Winner = &w
	}
	return &row, true, nil
}

func (r *MatchRepository) Participants(ctx context.Context, matchID int64) ([]Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, nick, team FROM match_players WHERE match_id = ?`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query match players: %w", err)
	}
	defer rows.Close()

	var results []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserID, &p.Nick, &p.Team); err != nil {
			return nil, fmt.Errorf("failed to scan match player: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// RecordUnranked stores the match header and roster rows without touching any
// rating state. Player rows are created lazily so the roster always resolves.
func (r *MatchRepository) RecordUnranked(ctx context.Context, m *domain.Match) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertMatchTx(ctx, tx, m); err != nil {
		return err
	}
	for team := range m.Teams {
		for _, userID := range m.Teams[team].Players {
			if err := ensurePlayerRowTx(ctx, tx, m.ChannelID, userID); err != nil {
				return err
			}
			if err := insertParticipantTx(ctx, tx, m, userID, team); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// RecordRanked persists one settled match as a single logical transaction:
// the match header, the roster rows, every player update and every ledger
// entry. Any failure leaves the database untouched.
func (r *MatchRepository) RecordRanked(ctx context.Context, m *domain.Match, updates []domain.PlayerRecord, entries []domain.RatingHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertMatchTx(ctx, tx, m); err != nil {
		return err
	}
	for i := range updates {
		if _, err := tx.ExecContext(ctx, upsertPlayerSQL, upsertPlayerArgs(&updates[i])...); err != nil {
			return fmt.Errorf("failed to upsert player %d/%d: %w", updates[i].ChannelID, updates[i].UserID, err)
		}
	}
	for team := range m.Teams {
		for _, userID := range m.Teams[team].Players {
			if err := insertParticipantTx(ctx, tx, m, userID, team); err != nil {
				return err
			}
		}
	}
	for i := range entries {
		if err := insertHistoryTx(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ApplyUndo reverses one ranked match atomically: restored player records go
// in, the match's ledger entries and match rows go away.
func (r *MatchRepository) ApplyUndo(ctx context.Context, matchID int64, restored []domain.PlayerRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range restored {
		if _, err := tx.ExecContext(ctx, upsertPlayerSQL, upsertPlayerArgs(&restored[i])...); err != nil {
			return fmt.Errorf("failed to restore player %d/%d: %w", restored[i].ChannelID, restored[i].UserID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rating_history WHERE match_id = ?`, matchID); err != nil {
		return fmt.Errorf("failed to delete match history: %w", err)
	}
	if err := deleteMatchRowsTx(ctx, tx, matchID); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteRows removes the match header and roster rows (unranked undo).
func (r *MatchRepository) DeleteRows(ctx context.Context, matchID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteMatchRowsTx(ctx, tx, matchID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *MatchRepository) DeleteByChannel(ctx context.Context, channelID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_players WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("failed to delete channel match players: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("failed to delete channel matches: %w", err)
	}
	return tx.Commit()
}

func insertMatchTx(ctx context.Context, tx *sql.Tx, m *domain.Match) error {
	var winner any
	if m.Winner != nil {
		winner = *m.Winner
	}
	ranked := 0
	if m.Ranked {
		ranked = 1
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO matches (match_id, channel_id, queue_name, at, alpha_name, beta_name, ranked, winner, alpha_score, beta_score, maps)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChannelID, m.QueueName, m.At.Unix(),
		m.Teams[0].Name, m.Teams[1].Name, ranked, winner,
		m.Scores[0], m.Scores[1], strings.Join(m.Maps, "\n"),
	)
	if err != nil {
		return fmt.Errorf("failed to insert match %d: %w", m.ID, err)
	}
	return nil
}

// insertParticipantTx records one roster slot, stamping the player's nick as
// known at settlement time so the roster stays readable after later renames.
func insertParticipantTx(ctx context.Context, tx *sql.Tx, m *domain.Match, userID int64, team int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO match_players (match_id, user_id, channel_id, team, nick)
		 VALUES (?, ?, ?, ?, COALESCE((SELECT nick FROM players WHERE channel_id = ? AND user_id = ?), ''))`,
		m.ID, userID, m.ChannelID, team, m.ChannelID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match player %d/%d: %w", m.ID, userID, err)
	}
	return nil
}

func ensurePlayerRowTx(ctx context.Context, tx *sql.Tx, channelID, userID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO players (channel_id, user_id) VALUES (?, ?) ON CONFLICT (channel_id, user_id) DO NOTHING`,
		channelID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure player row %d/%d: %w", channelID, userID, err)
	}
	return nil
}

func deleteMatchRowsTx(ctx context.Context, tx *sql.Tx, matchID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM match_players WHERE match_id = ?`, matchID); err != nil {
		return fmt.Errorf("failed to delete match players: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE match_id = ?`, matchID); err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	return nil
}
