package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"pickup-rating/internal/config"
	"pickup-rating/internal/domain"
	"pickup-rating/internal/repository"
	"pickup-rating/internal/service"
)

// APIServer exposes the rating engine over JSON for the bot process and the
// admin tooling.
type APIServer struct {
	settlementSvc  *service.SettlementService
	maintenanceSvc *service.MaintenanceService
	leaderboardSvc *service.LeaderboardService
	settingsRepo   *repository.SettingsRepository
	matchRepo      *repository.MatchRepository
	logger         zerolog.Logger
}

func NewAPIServer(
	settlementSvc *service.SettlementService,
	maintenanceSvc *service.MaintenanceService,
	leaderboardSvc *service.LeaderboardService,
	settingsRepo *repository.SettingsRepository,
	matchRepo *repository.MatchRepository,
	logger zerolog.Logger,
) *APIServer {
	return &APIServer{
		settlementSvc:  settlementSvc,
		maintenanceSvc: maintenanceSvc,
		leaderboardSvc: leaderboardSvc,
		settingsRepo:   settingsRepo,
		matchRepo:      matchRepo,
		logger:         logger,
	}
}

// Register mounts every route on the mux.
func (s *APIServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/channels/{channelID}/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/v1/channels/{channelID}/players/{userID}", s.handlePlayer)
	mux.HandleFunc("GET /api/v1/channels/{channelID}/players/{userID}/history", s.handleHistory)
	mux.HandleFunc("PUT /api/v1/channels/{channelID}/players/{userID}/rating", s.handleSetRating)
	mux.HandleFunc("PUT /api/v1/channels/{channelID}/players/{userID}/hidden", s.handleHidden)
	mux.HandleFunc("GET /api/v1/channels/{channelID}/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/v1/channels/{channelID}/settings", s.handlePutSettings)
	mux.HandleFunc("POST /api/v1/channels/{channelID}/decay", s.handleDecay)
	mux.HandleFunc("POST /api/v1/channels/{channelID}/snap", s.handleSnap)
	mux.HandleFunc("POST /api/v1/channels/{channelID}/reset", s.handleReset)
	mux.HandleFunc("POST /api/v1/matches", s.handleRegisterMatch)
	mux.HandleFunc("DELETE /api/v1/matches/{matchID}", s.handleUndoMatch)
}

type matchRequest struct {
	MatchID        *int64                `json:"match_id"`
	ChannelID      int64                 `json:"channel_id"`
	Queue          string                `json:"queue"`
	Teams          [2]domain.Team        `json:"teams"`
	Winner         *int                  `json:"winner"`
	Scores         [2]int                `json:"scores"`
	Ranked         bool                  `json:"ranked"`
	Maps           []string              `json:"maps"`
	DraftPositions map[int64]int         `json:"draft_positions,omitempty"`
	Captains       []int64               `json:"captains,omitempty"`
	Substitutions  []domain.Substitution `json:"substitutions,omitempty"`
}

type matchResponse struct {
	MatchID int64                         `json:"match_id"`
	Before  map[int64]domain.PlayerRecord `json:"before,omitempty"`
	After   map[int64]domain.PlayerRecord `json:"after,omitempty"`
}

func (s *APIServer) handleRegisterMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Winner != nil && (*req.Winner < 0 || *req.Winner > 1) {
		s.writeError(w, http.StatusBadRequest, "winner must be 0 or 1")
		return
	}

	ctx := r.Context()
	var matchID int64
	if req.MatchID != nil {
		matchID = *req.MatchID
	} else {
		next, err := s.matchRepo.NextMatchID(ctx)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		matchID = next
	}

	captains := make(map[int64]struct{}, len(req.Captains))
	for _, id := range req.Captains {
		captains[id] = struct{}{}
	}
	m := &domain.Match{
		ID:             matchID,
		ChannelID:      req.ChannelID,
		QueueName:      req.Queue,
		At:             time.Now(),
		Teams:          req.Teams,
		Winner:         req.Winner,
		Scores:         req.Scores,
		Ranked:         req.Ranked,
		Maps:           req.Maps,
		DraftPositions: req.DraftPositions,
		Captains:       captains,
	}

	if !req.Ranked {
		if err := s.settlementSvc.RegisterMatchUnranked(ctx, m); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, matchResponse{MatchID: matchID})
		return
	}

	settings, err := s.settingsForChannel(r, req.ChannelID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	result, err := s.settlementSvc.RegisterMatchRanked(ctx, settings, m, req.Substitutions)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, matchResponse{MatchID: matchID, Before: result.Before, After: result.After})
}

func (s *APIServer) handleUndoMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(r.PathValue("matchID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}

	match, found, err := s.matchRepo.Get(r.Context(), matchID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "match not found")
		return
	}

	settings, err := s.settingsForChannel(r, match.ChannelID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	undone, err := s.settlementSvc.UndoMatch(r.Context(), settings, matchID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !undone {
		s.writeError(w, http.StatusNotFound, "match not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"match_id": matchID, "undone": true})
}

func (s *APIServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	settings, err := s.channelSettingsFromPath(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.leaderboardSvc.Leaderboard(r.Context(), settings, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *APIServer) handlePlayer(w http.ResponseWriter, r *http.Request) {
	settings, err := s.channelSettingsFromPath(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	record, err := s.leaderboardSvc.PlayerStats(r.Context(), settings, userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(r.PathValue("channelID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.leaderboardSvc.History(r.Context(), channelID, userID, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

type setRatingRequest struct {
	Nick      string `json:"nick"`
	Rating    *int   `json:"rating"`
	Deviation *int   `json:"deviation"`
	Penalty   int    `json:"penalty"`
	Reason    string `json:"reason"`
}

func (s *APIServer) handleSetRating(w http.ResponseWriter, r *http.Request) {
	settings, err := s.channelSettingsFromPath(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req setRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := s.maintenanceSvc.SetRating(r.Context(), settings, userID, req.Nick, req.Rating, req.Deviation, req.Penalty, req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *APIServer) handleHidden(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(r.PathValue("channelID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.maintenanceSvc.HidePlayer(r.Context(), channelID, userID, req.Hidden); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.channelSettingsFromPath(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *APIServer) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(r.PathValue("channelID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	settings := config.DefaultChannelSettings(channelID)
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings.ChannelID = channelID
	if err := settings.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.settingsRepo.Upsert(r.Context(), &settings); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *APIServer) handleDecay(w http.ResponseWriter, r *http.Request) {
	settings, err := s.channelSettingsFromPath(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	changed, err := s.maintenanceSvc.ApplyDecay(r.Context(), settings)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"players_changed": changed})
}

func (s *APIServer) handleSnap(w http.ResponseWriter, r *http.Request) {
	settings, err := s.channelSettingsFromPath(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	changed, err := s.maintenanceSvc.SnapRatings(r.Context(), settings)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"players_changed": changed})
}

func (s *APIServer) handleReset(w http.ResponseWriter, r *http.Request) {
	settings, err := s.channelSettingsFromPath(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.maintenanceSvc.ResetRatings(r.Context(), settings); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// channelSettingsFromPath resolves the {channelID} path segment to its
// stored settings, falling back to defaults for unconfigured channels.
func (s *APIServer) channelSettingsFromPath(r *http.Request) (*config.ChannelSettings, error) {
	channelID, err := strconv.ParseInt(r.PathValue("channelID"), 10, 64)
	if err != nil {
		return nil, service.ErrUnknownChannel
	}
	return s.settingsForChannel(r, channelID)
}

func (s *APIServer) settingsForChannel(r *http.Request, channelID int64) (*config.ChannelSettings, error) {
	settings, found, err := s.settingsRepo.Get(r.Context(), channelID)
	if err != nil {
		return nil, err
	}
	if !found {
		defaults := config.DefaultChannelSettings(channelID)
		return &defaults, nil
	}
	return settings, nil
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *APIServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownChannel), errors.Is(err, service.ErrMatchNotFound), errors.Is(err, service.ErrPlayerNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidConfig):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUndoConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
