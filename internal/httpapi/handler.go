// Package httpapi exposes the waiver engine's operations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/reporting"
	"waiver-wire/internal/storage"
	"waiver-wire/internal/waiver"
)

// Engine is the subset of waiver.Service served over HTTP.
type Engine interface {
	SubmitClaim(ctx context.Context, req waiver.SubmitRequest) (*domain.Claim, error)
	CancelClaim(ctx context.Context, claimID, teamID string) (*domain.Claim, error)
	CancelClaimAsCommissioner(ctx context.Context, claimID string) (*domain.Claim, error)
	GetClaim(ctx context.Context, claimID string) (*domain.Claim, error)
	ListPendingClaims(ctx context.Context, teamID string) ([]*domain.Claim, error)
	TriggerResolution(ctx context.Context, leagueID string) (*domain.WaiverRun, error)
}

// Handler routes claim and run requests to the engine.
type Handler struct {
	engine  Engine
	history storage.EventStore
	log     logrus.FieldLogger
}

// New creates a Handler.
func New(engine Engine, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{engine: engine, log: logger.WithField("component", "httpapi")}
}

// WithHistory serves GET /leagues/{league}/events from events.
func (h *Handler) WithHistory(events storage.EventStore) *Handler {
	h.history = events
	return h
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h.history != nil {
		mux.HandleFunc("GET /leagues/{league}/events", h.leagueEvents)
	}
	mux.HandleFunc("POST /leagues/{league}/claims", h.submitClaim)
	mux.HandleFunc("POST /leagues/{league}/resolve", h.resolve)
	mux.HandleFunc("GET /claims/{claim}", h.getClaim)
	mux.HandleFunc("DELETE /claims/{claim}", h.cancelClaim)
	mux.HandleFunc("GET /teams/{team}/claims", h.listPending)
}

// SubmitClaimRequest is the body of POST /leagues/{league}/claims.
type SubmitClaimRequest struct {
	TeamID       string `json:"team_id"`
	Kind         string `json:"kind"`
	AddPlayerID  string `json:"add_player_id,omitempty"`
	DropPlayerID string `json:"drop_player_id,omitempty"`
	BidAmount    int64  `json:"bid_amount,omitempty"`
}

// ClaimResponse is the JSON form of a claim.
type ClaimResponse struct {
	ID                   string    `json:"id"`
	LeagueID             string    `json:"league_id"`
	TeamID               string    `json:"team_id"`
	Season               int       `json:"season"`
	Week                 int       `json:"week"`
	Kind                 string    `json:"kind"`
	AddPlayerID          string    `json:"add_player_id,omitempty"`
	DropPlayerID         string    `json:"drop_player_id,omitempty"`
	BidAmount            int64     `json:"bid_amount"`
	PriorityAtSubmission int       `json:"priority_at_submission"`
	Status               string    `json:"status"`
	FailureReason        string    `json:"failure_reason,omitempty"`
	CancelReason         string    `json:"cancel_reason,omitempty"`
	SubmittedAt          time.Time `json:"submitted_at"`
	ExpiresAt            time.Time `json:"expires_at"`

	RunID           string     `json:"run_id,omitempty"`
	WinningBid      int64      `json:"winning_bid,omitempty"`
	CompetingClaims int        `json:"competing_claims,omitempty"`
	ProcessingOrder int        `json:"processing_order,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

// RunResponse is the JSON form of a waiver run.
type RunResponse struct {
	RunID       string             `json:"run_id,omitempty"`
	LeagueID    string             `json:"league_id"`
	Trigger     string             `json:"trigger"`
	Skipped     bool               `json:"skipped"`
	Aborted     bool               `json:"aborted"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
	Summary     *domain.RunSummary `json:"summary,omitempty"`
	Claims      []ClaimResponse    `json:"claims"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) submitClaim(w http.ResponseWriter, r *http.Request) {
	var req SubmitClaimRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	c, err := h.engine.SubmitClaim(r.Context(), waiver.SubmitRequest{
		LeagueID:     r.PathValue("league"),
		TeamID:       req.TeamID,
		Kind:         domain.ClaimKind(req.Kind),
		AddPlayerID:  req.AddPlayerID,
		DropPlayerID: req.DropPlayerID,
		BidAmount:    req.BidAmount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClaimResponse(c))
}

func (h *Handler) cancelClaim(w http.ResponseWriter, r *http.Request) {
	claimID := r.PathValue("claim")
	q := r.URL.Query()

	var (
		c   *domain.Claim
		err error
	)
	switch {
	case q.Get("team") != "":
		c, err = h.engine.CancelClaim(r.Context(), claimID, q.Get("team"))
	case q.Get("commissioner") == "true":
		c, err = h.engine.CancelClaimAsCommissioner(r.Context(), claimID)
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "INVALID_REQUEST", Message: "team or commissioner=true is required"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(c))
}

func (h *Handler) getClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.GetClaim(r.Context(), r.PathValue("claim"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(c))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	claims, err := h.engine.ListPendingClaims(r.Context(), r.PathValue("team"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]ClaimResponse, 0, len(claims))
	for _, c := range claims {
		out = append(out, toClaimResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.TriggerResolution(r.Context(), r.PathValue("league"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if run.Skipped {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toRunResponse(run))
}

func (h *Handler) leagueEvents(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "INVALID_REQUEST", Message: "since must be RFC3339"})
			return
		}
		since = t
	}

	events, err := h.history.GetByLeague(r.Context(), r.PathValue("league"), since)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.WaiverEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *waiver.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: string(ve.Code), Message: ve.Message})
	case errors.Is(err, waiver.ErrClaimNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "CLAIM_NOT_FOUND"})
	case errors.Is(err, waiver.ErrLeagueNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "LEAGUE_NOT_FOUND", Message: err.Error()})
	case errors.Is(err, waiver.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "NOT_OWNER"})
	case errors.Is(err, waiver.ErrNotPending):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "NOT_PENDING"})
	case errors.Is(err, waiver.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "RUN_IN_PROGRESS"})
	case errors.Is(err, waiver.ErrNoWaiverRules):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "WAIVERS_NOT_CONFIGURED"})
	case errors.Is(err, storage.ErrUnavailable):
		h.log.WithError(err).WithField("path", r.URL.Path).Warn("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "UNAVAILABLE"})
	default:
		h.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL_ERROR"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toClaimResponse(c *domain.Claim) ClaimResponse {
	out := ClaimResponse{
		ID:                   c.ID,
		LeagueID:             c.LeagueID,
		TeamID:               c.TeamID,
		Season:               c.Season,
		Week:                 c.Week,
		Kind:                 string(c.Kind),
		AddPlayerID:          c.AddPlayerID,
		DropPlayerID:         c.DropPlayerID,
		BidAmount:            c.BidAmount,
		PriorityAtSubmission: c.PriorityAtSubmission,
		Status:               string(c.Status),
		FailureReason:        string(c.FailureReason),
		CancelReason:         string(c.CancelReason),
		SubmittedAt:          c.SubmittedAt,
		ExpiresAt:            c.ExpiresAt,
	}
	if res := c.Resolution; res != nil {
		out.RunID = res.RunID
		out.WinningBid = res.WinningBid
		out.CompetingClaims = res.CompetingClaims
		out.ProcessingOrder = res.ProcessingOrder
		if !res.ProcessedAt.IsZero() {
			at := res.ProcessedAt
			out.ProcessedAt = &at
		}
	}
	return out
}

func toRunResponse(run *domain.WaiverRun) RunResponse {
	out := RunResponse{
		RunID:       run.RunID,
		LeagueID:    run.LeagueID,
		Trigger:     string(run.Trigger),
		Skipped:     run.Skipped,
		Aborted:     run.Aborted,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Claims:      make([]ClaimResponse, 0, len(run.Claims)),
	}
	if len(run.Claims) > 0 {
		out.Summary = reporting.Summarize(run.Claims)
	}
	for _, c := range run.Claims {
		out.Claims = append(out.Claims, toClaimResponse(c))
	}
	return out
}
