package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/branchbase/cli-auth-server/internal/config"
	apperrors "github.com/branchbase/cli-auth-server/internal/errors"
	"github.com/branchbase/cli-auth-server/internal/middleware"
	"github.com/branchbase/cli-auth-server/internal/service"
)

type DeviceSessionHandler struct {
	sessions       *service.DeviceSessionService
	clientKeyMW    func(http.Handler) http.Handler
	authMW         func(http.Handler) http.Handler
	pollRateMW     func(http.Handler) http.Handler
	createRateMW   func(http.Handler) http.Handler
	browserHeaders func(http.Handler) http.Handler
}

func NewDeviceSessionHandler(
	sessions *service.DeviceSessionService,
	clientKeyMW func(http.Handler) http.Handler,
	authMW func(http.Handler) http.Handler,
	pollRateMW func(http.Handler) http.Handler,
	createRateMW func(http.Handler) http.Handler,
	browserHeaders func(http.Handler) http.Handler,
) *DeviceSessionHandler {
	return &DeviceSessionHandler{
		sessions:       sessions,
		clientKeyMW:    clientKeyMW,
		authMW:         authMW,
		pollRateMW:     pollRateMW,
		createRateMW:   createRateMW,
		browserHeaders: browserHeaders,
	}
}

func (h *DeviceSessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.clientKeyMW)
		r.With(h.createRateMW).Post("/", h.Create)
		r.With(h.pollRateMW).Get("/{pollingCode}", h.Poll)
	})

	r.With(h.browserHeaders).Post("/{pollingCode}/authorize", h.Authorize)
	r.With(h.authMW).Post("/login-code", h.BindLoginCode)

	return r
}

type createSessionRequest struct {
	TTLMillis int64 `json:"ttlMillis"`
}

type createSessionResponse struct {
	PollingCode           string    `json:"pollingCode"`
	LoginCode             string    `json:"loginCode"`
	ExpiresAt             time.Time `json:"expiresAt"`
	PollingIntervalMillis int64     `json:"pollingIntervalMillis"`
}

// POST /v1/device-sessions
func (h *DeviceSessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenancy, ok := middleware.GetTenancy(r.Context())
	if !ok {
		writeError(w, apperrors.InvalidClientKey())
		return
	}

	// Decode regardless of Content-Length so chunked requests are honored;
	// only a genuinely empty body falls back to the defaults.
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.TTLMillis < 0 {
		writeError(w, apperrors.InvalidInput("ttlMillis", "must not be negative"))
		return
	}

	result, err := h.sessions.CreateSession(
		r.Context(), tenancy, time.Duration(req.TTLMillis)*time.Millisecond,
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create device session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		PollingCode:           result.PollingCode,
		LoginCode:             result.LoginCode,
		ExpiresAt:             result.ExpiresAt,
		PollingIntervalMillis: config.PollingInterval.Milliseconds(),
	})
}

// GET /v1/device-sessions/{pollingCode}
func (h *DeviceSessionHandler) Poll(w http.ResponseWriter, r *http.Request) {
	tenancy, ok := middleware.GetTenancy(r.Context())
	if !ok {
		writeError(w, apperrors.InvalidClientKey())
		return
	}

	pollingCode := chi.URLParam(r, "pollingCode")
	if pollingCode == "" {
		writeError(w, apperrors.MissingRequired("pollingCode"))
		return
	}

	result, err := h.sessions.Poll(r.Context(), pollingCode, tenancy)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type authorizeRequest struct {
	AccessToken string `json:"accessToken"`
}

type bindResponse struct {
	Status string `json:"status"`
}

// POST /v1/device-sessions/{pollingCode}/authorize
//
// The redirect binding path. Success is idempotent: a browser that
// double-submits after losing a race still gets 200.
func (h *DeviceSessionHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	pollingCode := chi.URLParam(r, "pollingCode")

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.AccessToken == "" {
		writeError(w, apperrors.MissingRequired("accessToken"))
		return
	}

	if err := h.sessions.Authorize(r.Context(), pollingCode, req.AccessToken); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bindResponse{Status: "authorized"})
}

type bindLoginCodeRequest struct {
	LoginCode    string `json:"loginCode"`
	RefreshToken string `json:"refreshToken"`
}

// POST /v1/device-sessions/login-code
//
// The direct binding path for an already-authenticated caller holding a
// refresh token issued out-of-band.
func (h *DeviceSessionHandler) BindLoginCode(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, apperrors.Unauthorized("Missing access token"))
		return
	}

	var req bindLoginCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.LoginCode == "" {
		writeError(w, apperrors.MissingRequired("loginCode"))
		return
	}
	if req.RefreshToken == "" {
		writeError(w, apperrors.MissingRequired("refreshToken"))
		return
	}

	err := h.sessions.BindLoginCode(
		r.Context(), req.LoginCode, identity.Tenancy(), identity.UserID(), req.RefreshToken,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bindResponse{Status: "authorized"})
}
