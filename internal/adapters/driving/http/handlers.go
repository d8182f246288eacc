package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// HealthResponse represents the readiness response with per-backend status
// @Description Readiness status with component details
type HealthResponse struct {
	Status     string                     `json:"status" example:"ready"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of one backend
type ComponentHealth struct {
	Status string `json:"status" example:"healthy"`
	Error  string `json:"error,omitempty"`
}

// UpdateIntervalRequest is the body of PUT /settings/sync-interval
// @Description Sync interval in milliseconds
type UpdateIntervalRequest struct {
	Interval int64 `json:"interval" example:"900000"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Liveness check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the store and lock backends
// @Tags         Health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Failure      503  {object}  HealthResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ready", Components: make(map[string]ComponentHealth, len(s.backends))}
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.backends[name].Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Components[name] = ComponentHealth{Status: "unhealthy", Error: err.Error()}
			continue
		}
		resp.Components[name] = ComponentHealth{Status: "healthy"}
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get daemon version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Control endpoints

// handleMessage godoc
// @Summary      Control message
// @Description  Generic request envelope. Always answers 200; failures are in-band.
// @Tags         Control
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.Request   true  "Control request"
// @Success      200      {object}  driving.Response
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Router       /messages [post]
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req driving.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Handle(r.Context(), req))
}

// handleSyncAll godoc
// @Summary      Sync all providers
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driving.Response
// @Failure      422  {object}  driving.Response
// @Router       /sync [post]
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{Type: driving.RequestSyncAll}))
}

// handleSyncProvider godoc
// @Summary      Sync one provider
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Param        providerId  path      string  true  "Provider ID"
// @Success      200         {object}  driving.Response
// @Failure      422         {object}  driving.Response
// @Router       /sync/{providerId} [post]
func (s *Server) handleSyncProvider(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{
		Type:       driving.RequestSyncProvider,
		ProviderID: r.PathValue("providerId"),
	}))
}

// handleSyncStatus godoc
// @Summary      Scheduler status
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driving.Response
// @Router       /sync/status [get]
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{Type: driving.RequestGetSyncStatus}))
}

// handleUpdateInterval godoc
// @Summary      Update sync interval
// @Description  Interval in milliseconds; the periodic timer runs every max(1, floor(ms/60000)) minutes
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      UpdateIntervalRequest  true  "New interval"
// @Success      200      {object}  driving.Response
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      422      {object}  driving.Response
// @Router       /settings/sync-interval [put]
func (s *Server) handleUpdateInterval(w http.ResponseWriter, r *http.Request) {
	var req UpdateIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{
		Type:     driving.RequestUpdateSyncInterval,
		Interval: req.Interval,
	}))
}

// Provider endpoints

// handleListProviders godoc
// @Summary      List provider status
// @Tags         Providers
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driving.Response
// @Router       /providers [get]
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{Type: driving.RequestGetProviderStatus}))
}

// handleGetProvider godoc
// @Summary      Get provider status
// @Tags         Providers
// @Produce      json
// @Security     BearerAuth
// @Param        providerId  path      string  true  "Provider ID"
// @Success      200         {object}  driving.Response
// @Failure      422         {object}  driving.Response
// @Router       /providers/{providerId} [get]
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{
		Type:       driving.RequestGetProviderStatus,
		ProviderID: r.PathValue("providerId"),
	}))
}

// handleSetProviderConfig godoc
// @Summary      Update provider config
// @Description  Merges the given fields into the stored config
// @Tags         Providers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        providerId  path      string              true  "Provider ID"
// @Param        request     body      domain.ConfigPatch  true  "Partial config"
// @Success      200         {object}  driving.Response
// @Failure      400         {object}  ErrorResponse  "Invalid request body"
// @Failure      422         {object}  driving.Response
// @Router       /providers/{providerId}/config [patch]
func (s *Server) handleSetProviderConfig(w http.ResponseWriter, r *http.Request) {
	var patch domain.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{
		Type:       driving.RequestSetProviderConfig,
		ProviderID: r.PathValue("providerId"),
		Config:     &patch,
	}))
}

// handleAuthenticate godoc
// @Summary      Connect provider
// @Description  Uses a configured personal access token, or runs the OAuth flow
// @Tags         Providers
// @Produce      json
// @Security     BearerAuth
// @Param        providerId  path      string  true  "Provider ID"
// @Success      200         {object}  driving.Response
// @Failure      422         {object}  driving.Response
// @Router       /providers/{providerId}/authenticate [post]
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{
		Type:       driving.RequestAuthenticate,
		ProviderID: r.PathValue("providerId"),
	}))
}

// handleDisconnect godoc
// @Summary      Disconnect provider
// @Description  Revokes and forgets the token; config and snapshot are kept
// @Tags         Providers
// @Produce      json
// @Security     BearerAuth
// @Param        providerId  path      string  true  "Provider ID"
// @Success      200         {object}  driving.Response
// @Failure      422         {object}  driving.Response
// @Router       /providers/{providerId}/auth [delete]
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.controller.Handle(r.Context(), driving.Request{
		Type:       driving.RequestDisconnect,
		ProviderID: r.PathValue("providerId"),
	}))
}

// Helper functions

// reply writes a controller response. REST routes report an unsuccessful
// response as 422 with the same body the envelope would carry.
func (s *Server) reply(w http.ResponseWriter, resp driving.Response) {
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
