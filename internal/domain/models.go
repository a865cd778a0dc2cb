package domain

import (
	"time"
)

// SubStatusInProgress marks a substitution that happened while the match was
// live. If the substitute's team loses, the rating loss is redirected to the
// player they replaced.
const SubStatusInProgress = "In Progress"

type PlayerRecord struct {
	ChannelID    int64      `json:"channel_id"`
	UserID       int64      `json:"user_id"`
	Nick         string     `json:"nick"`
	Rating       int        `json:"rating"`
	Deviation    int        `json:"deviation"`
	Wins         int        `json:"wins"`
	Losses       int        `json:"losses"`
	Draws        int        `json:"draws"`
	Streak       int        `json:"streak"`
	IsHidden     bool       `json:"is_hidden"`
	LastRankedAt *time.Time `json:"last_ranked_at,omitempty"`
}

type RatingHistoryEntry struct {
	ID              string    `json:"id"` // nanoid
	ChannelID       int64     `json:"channel_id"`
	UserID          int64     `json:"user_id"`
	At              time.Time `json:"at"`
	RatingBefore    int       `json:"rating_before"`
	RatingChange    int       `json:"rating_change"`
	DeviationBefore int       `json:"deviation_before"`
	DeviationChange int       `json:"deviation_change"`
	MatchID         *int64    `json:"match_id,omitempty"` // nil for decay/snap/reset/manual events
	Reason          string    `json:"reason"`
}

type Team struct {
	Name    string  `json:"name"`
	Players []int64 `json:"players"`
}

type Match struct {
	ID             int64
	ChannelID      int64
	QueueName      string
	At             time.Time
	Teams          [2]Team
	Winner         *int // 0 or 1, nil for a draw
	Scores         [2]int
	Ranked         bool
	Maps           []string
	DraftPositions map[int64]int      // zero-indexed pick order
	Captains       map[int64]struct{} // team captains, any team
}

// Substitution maps a stand-in player to the player they replaced.
type Substitution struct {
	SubstituteID int64  `json:"substitute_id"`
	OriginalID   int64  `json:"original_id"`
	Status       string `json:"status"`
}

// Rank is one rating cutoff in a channel's rank ladder.
type Rank struct {
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// LosingTeam returns the index of the losing team, or -1 for a draw.
func (m *Match) LosingTeam() int {
	if m.Winner == nil {
		return -1
	}
	if *m.Winner == 0 {
		return 1
	}
	return 0
}

// OnTeam reports which team a player belongs to, or -1 if not on the roster.
func (m *Match) OnTeam(userID int64) int {
	for i := range m.Teams {
		for _, id := range m.Teams[i].Players {
			if id == userID {
				return i
			}
		}
	}
	return -1
}
