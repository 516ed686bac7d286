// Package httpapi binds the chi surface to the lifecycle engine. Every
// request carries an identity header; the role is resolved once and the
// handler set is gated by a role-to-capability table.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"fleetdispatch/internal/dispatch"
	"fleetdispatch/internal/roles"
	"fleetdispatch/internal/stats"
	"fleetdispatch/internal/ticket"
)

const (
	userHeader     = "X-User-ID"
	adminKeyHeader = "X-Admin-Key"
)

type capability string

const (
	capSubmit  capability = "submit"
	capClaim   capability = "claim"
	capResolve capability = "resolve"
	capList    capability = "list"
	capStats   capability = "stats"
	capRoles   capability = "roles"
	capStream  capability = "stream"
)

var grants = map[string]map[capability]bool{
	roles.RoleAdmin: {
		capList: true, capStats: true, capRoles: true, capStream: true,
	},
	roles.RoleDispatcher: {
		capSubmit: true, capList: true, capStream: true,
	},
	roles.RoleTechnician: {
		capClaim: true, capResolve: true, capList: true, capStream: true,
	},
}

type API struct {
	logger       *log.Logger
	engine       *dispatch.Engine
	store        *ticket.Store
	roles        *roles.Registry
	stats        *stats.Aggregator
	stream       http.HandlerFunc
	adminKeyHash []byte
}

func New(logger *log.Logger, engine *dispatch.Engine, store *ticket.Store, reg *roles.Registry, agg *stats.Aggregator, stream http.HandlerFunc, adminKey string) *API {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatalf("hash admin key: %v", err)
	}
	return &API{
		logger:       logger,
		engine:       engine,
		store:        store,
		roles:        reg,
		stats:        agg,
		stream:       stream,
		adminKeyHash: hash,
	}
}

func (a *API) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/tickets", a.with(capSubmit, a.createTicket))
		r.Get("/tickets", a.with(capList, a.listTickets))
		r.Get("/tickets/active", a.with(capResolve, a.listActive))
		r.Get("/tickets/{id}", a.with(capList, a.getTicket))
		r.Post("/tickets/{id}/claim", a.with(capClaim, a.claimTicket))
		r.Post("/tickets/{id}/outcome", a.with(capResolve, a.setOutcome))
		r.Post("/inbox/text", a.with(capResolve, a.inboxText))
		r.Post("/inbox/photo", a.with(capResolve, a.inboxPhoto))
		r.Get("/stats", a.with(capStats, a.getStats))
		r.Get("/roles", a.with(capRoles, a.listRoles))
		r.Post("/roles", a.with(capRoles, a.assignRole))
		r.Get("/stream", a.with(capStream, func(w http.ResponseWriter, r *http.Request, _ int64, _ string) {
			a.stream(w, r)
		}))
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID int64, role string)

func (a *API) with(cap capability, h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(userHeader), 10, 64)
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "missing or invalid "+userHeader)
			return
		}
		role, ok := a.roles.Role(id)
		if !ok {
			writeErr(w, http.StatusUnauthorized, "unknown user")
			return
		}
		if !grants[role][cap] {
			writeErr(w, http.StatusForbidden, "not allowed")
			return
		}
		h(w, r, id, role)
	}
}

func (a *API) createTicket(w http.ResponseWriter, r *http.Request, userID int64, _ string) {
	var f ticket.Fields
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := a.engine.Submit(r.Context(), userID, f)
	if err != nil {
		a.writeDomainErr(w, err)
		return
	}

	body := map[string]any{"ticket": res.Ticket, "notified": res.Notified}
	if res.Notified == 0 {
		body["warning"] = "could not reach any technician"
	}
	writeJSON(w, http.StatusCreated, body)
}

func (a *API) listTickets(w http.ResponseWriter, r *http.Request, userID int64, role string) {
	var items []ticket.Ticket
	switch role {
	case roles.RoleAdmin:
		items = a.store.ListOpen()
	case roles.RoleDispatcher:
		items = a.store.ListOpenByDispatcher(userID)
	case roles.RoleTechnician:
		items = a.store.ListByTechnician(userID)
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) listActive(w http.ResponseWriter, _ *http.Request, userID int64, _ string) {
	writeJSON(w, http.StatusOK, a.store.ListActiveByTechnician(userID))
}

func (a *API) getTicket(w http.ResponseWriter, r *http.Request, userID int64, role string) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	t, err := a.store.Get(id)
	if err != nil {
		a.writeDomainErr(w, err)
		return
	}
	if !canView(userID, role, t) {
		writeErr(w, http.StatusForbidden, "not allowed")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func canView(userID int64, role string, t ticket.Ticket) bool {
	switch role {
	case roles.RoleAdmin:
		return true
	case roles.RoleDispatcher:
		return t.DispatcherID == userID
	case roles.RoleTechnician:
		return t.TechnicianID != nil && *t.TechnicianID == userID
	default:
		return false
	}
}

func (a *API) claimTicket(w http.ResponseWriter, r *http.Request, userID int64, _ string) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Action ticket.Action `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	t, err := a.engine.Claim(r.Context(), userID, id, req.Action)
	if err != nil {
		a.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) setOutcome(w http.ResponseWriter, r *http.Request, userID int64, _ string) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Resolved bool `json:"resolved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	t, err := a.engine.SetOutcome(r.Context(), userID, id, req.Resolved)
	if err != nil {
		a.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) inboxText(w http.ResponseWriter, r *http.Request, userID int64, _ string) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeErr(w, http.StatusBadRequest, "text required")
		return
	}

	t, err := a.engine.Text(r.Context(), userID, req.Text)
	if err != nil {
		a.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) inboxPhoto(w http.ResponseWriter, r *http.Request, userID int64, _ string) {
	var req struct {
		PhotoRef string `json:"photo_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhotoRef == "" {
		writeErr(w, http.StatusBadRequest, "photo_ref required")
		return
	}

	done, err := a.engine.Photo(r.Context(), userID, req.PhotoRef)
	if err != nil {
		a.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, done.Ticket)
}

func (a *API) getStats(w http.ResponseWriter, _ *http.Request, _ int64, _ string) {
	writeJSON(w, http.StatusOK, a.stats.Snapshot())
}

func (a *API) listRoles(w http.ResponseWriter, _ *http.Request, _ int64, _ string) {
	writeJSON(w, http.StatusOK, map[string]any{"members": a.roles.Snapshot()})
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request, userID int64, _ string) {
	if bcrypt.CompareHashAndPassword(a.adminKeyHash, []byte(r.Header.Get(adminKeyHeader))) != nil {
		writeErr(w, http.StatusForbidden, "admin key required")
		return
	}
	var req struct {
		UserID int64  `json:"user_id"`
		Role   string `json:"role"`
		Name   string `json:"name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid json/user_id")
		return
	}

	if err := a.engine.AssignRole(r.Context(), userID, req.UserID, req.Role, req.Name); err != nil {
		switch {
		case errors.Is(err, roles.ErrUnknownRole):
			writeErr(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, roles.ErrProtected):
			writeErr(w, http.StatusForbidden, err.Error())
		default:
			a.writeDomainErr(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": req.UserID, "role": req.Role})
}

func (a *API) writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ticket.ErrValidation):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ticket.ErrForbidden):
		writeErr(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ticket.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ticket.ErrAlreadyHandled):
		// informational, not a fault: the race was simply lost
		writeJSON(w, http.StatusConflict, map[string]string{"info": err.Error()})
	case errors.Is(err, ticket.ErrSequence):
		writeErr(w, http.StatusConflict, err.Error())
	default:
		a.logger.Printf("internal error: %v", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
