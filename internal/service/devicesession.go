package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/branchbase/cli-auth-server/internal/audit"
	apperrors "github.com/branchbase/cli-auth-server/internal/errors"
	"github.com/branchbase/cli-auth-server/internal/model"
	"github.com/branchbase/cli-auth-server/internal/repository"
	"github.com/branchbase/cli-auth-server/internal/token"
	"github.com/branchbase/cli-auth-server/internal/util"
)

const (
	defaultSessionTTL = 10 * time.Minute
	maxSessionTTL     = 24 * time.Hour

	// Bounded retry budget for code generation. Exhaustion means the entropy
	// or storage layer is compromised and is surfaced as a server error.
	codeGenerationAttempts = 5
)

type CreateDeviceSessionResult struct {
	PollingCode string    `json:"pollingCode"`
	LoginCode   string    `json:"loginCode"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type PollResult struct {
	Status       model.DeviceSessionStatus `json:"status"`
	UserID       *string                   `json:"userId,omitempty"`
	AccessToken  *string                   `json:"accessToken,omitempty"`
	RefreshToken *string                   `json:"refreshToken,omitempty"`
}

// TokenCodec is the identity/token collaborator: it verifies access tokens
// presented by browsers and mints the tokens handed to the CLI after binding.
type TokenCodec interface {
	Issue(userID string, tenancy model.Tenancy) (string, error)
	Decode(raw string) (*token.Claims, error)
}

// DeviceSessionService is the protocol engine for CLI login. It creates the
// polling/login code pair, enforces expiry, and implements both binding
// paths, funneling them into the store's conditional bind so a session is
// consumed exactly once.
type DeviceSessionService struct {
	sessionRepo repository.DeviceSessionRepository
	tokens      TokenCodec
	cipher      *util.Cipher
	nowFunc     func() time.Time
}

func NewDeviceSessionService(
	sessionRepo repository.DeviceSessionRepository,
	tokens TokenCodec,
	cipher *util.Cipher,
) *DeviceSessionService {
	return &DeviceSessionService{
		sessionRepo: sessionRepo,
		tokens:      tokens,
		cipher:      cipher,
		nowFunc:     time.Now,
	}
}

// WithClock overrides the service clock. Expiry is a pure function of stored
// data plus this clock, which keeps the state machine deterministic in tests.
func (s *DeviceSessionService) WithClock(now func() time.Time) *DeviceSessionService {
	s.nowFunc = now
	return s
}

func (s *DeviceSessionService) now() time.Time {
	return s.nowFunc()
}

// ClampTTL maps a requested TTL into (0, 24h]. Non-positive requests get the
// default; anything above the ceiling is clamped, not rejected.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultSessionTTL
	}
	if ttl > maxSessionTTL {
		return maxSessionTTL
	}
	return ttl
}

// CreateSession allocates a new pending device session confined to the given
// tenancy. The polling code and login code are distinct values so that
// leaking one never lets an attacker claim the other.
func (s *DeviceSessionService) CreateSession(
	ctx context.Context,
	tenancy model.Tenancy,
	ttl time.Duration,
) (*CreateDeviceSessionResult, error) {
	expiresAt := s.now().Add(ClampTTL(ttl))

	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		pollingCode, err := util.GenerateToken()
		if err != nil {
			return nil, apperrors.GenerationExhausted().WithCause(err)
		}
		loginCode, err := util.GenerateToken()
		if err != nil {
			return nil, apperrors.GenerationExhausted().WithCause(err)
		}

		session, err := s.sessionRepo.Create(ctx, model.CreateDeviceSessionParams{
			PollingCode: pollingCode,
			LoginCode:   loginCode,
			ProjectID:   tenancy.ProjectID,
			BranchID:    tenancy.BranchID,
			ExpiresAt:   expiresAt,
		})
		if err == repository.ErrDuplicateCode {
			log.Warn().Int("attempt", attempt+1).Msg("device session code collision, regenerating")
			continue
		}
		if err != nil {
			return nil, apperrors.Database(err)
		}

		audit.Log(ctx, audit.Event{
			Type: audit.EventSessionCreate,
			Details: map[string]interface{}{
				"session_id": session.ID,
				"tenancy":    tenancy.String(),
				"expires_at": expiresAt.Format(time.RFC3339),
			},
		})

		return &CreateDeviceSessionResult{
			PollingCode: pollingCode,
			LoginCode:   loginCode,
			ExpiresAt:   session.ExpiresAt,
		}, nil
	}

	return nil, apperrors.GenerationExhausted()
}

// Authorize is the redirect binding path. A browser that completed sign-in
// presents its access token against the session's polling code.
func (s *DeviceSessionService) Authorize(ctx context.Context, pollingCode, presentedToken string) error {
	session, err := s.sessionRepo.FindByPollingCode(ctx, pollingCode)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		log.Warn().Str("pollingCode", util.MaskCode(pollingCode)).Msg("authorize: unknown polling code")
		return apperrors.InvalidPollingCode()
	}
	if session.ExpiredAt(s.now()) {
		return apperrors.SessionExpired()
	}

	claims, err := s.tokens.Decode(presentedToken)
	if err != nil {
		return apperrors.CredentialError("Presented access token is invalid").WithCause(err)
	}

	if !claims.Tenancy().Equal(session.Tenancy()) {
		audit.Log(ctx, audit.Event{
			Type:   audit.EventScopeMismatch,
			UserID: claims.UserID(),
			Details: map[string]interface{}{
				"session_id":      session.ID,
				"session_tenancy": session.Tenancy().String(),
				"token_tenancy":   claims.Tenancy().String(),
			},
		})
		return apperrors.ScopeMismatch()
	}

	refreshToken, err := util.GenerateToken()
	if err != nil {
		return apperrors.GenerationExhausted().WithCause(err)
	}

	return s.bind(ctx, session, claims.UserID(), refreshToken)
}

// BindLoginCode is the direct binding path for a caller that already
// completed an interactive sign-in out-of-band and holds a fresh refresh
// token. Trust comes from the caller's own prior authentication; the handler
// verified it before this is reached, so no token decoding happens here.
func (s *DeviceSessionService) BindLoginCode(
	ctx context.Context,
	loginCode string,
	tenancy model.Tenancy,
	userID string,
	refreshToken string,
) error {
	session, err := s.sessionRepo.FindByLoginCode(ctx, loginCode)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		log.Warn().Str("loginCode", util.MaskCode(loginCode)).Msg("bind: unknown login code")
		return apperrors.InvalidLoginCode()
	}
	if session.ExpiredAt(s.now()) {
		return apperrors.SessionExpired()
	}

	if !tenancy.Equal(session.Tenancy()) {
		audit.Log(ctx, audit.Event{
			Type:   audit.EventScopeMismatch,
			UserID: userID,
			Details: map[string]interface{}{
				"session_id":      session.ID,
				"session_tenancy": session.Tenancy().String(),
				"caller_tenancy":  tenancy.String(),
			},
		})
		return apperrors.ScopeMismatch()
	}

	return s.bind(ctx, session, userID, refreshToken)
}

// bind mints the access token, writes the credential through the store's
// conditional update, and absorbs lost races as success so a double-submit
// never surfaces an error to the authorizer.
func (s *DeviceSessionService) bind(ctx context.Context, session *model.DeviceSession, userID, refreshToken string) error {
	accessToken, err := s.tokens.Issue(userID, session.Tenancy())
	if err != nil {
		return apperrors.Internal("Failed to issue access token").WithCause(err)
	}

	storedRefresh, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return apperrors.Internal("Failed to protect refresh token").WithCause(err)
	}

	won, err := s.sessionRepo.BindCredential(ctx, session.ID, userID, accessToken, storedRefresh, s.now())
	if err != nil {
		return apperrors.Database(err)
	}

	if !won {
		return s.resolveLostBind(ctx, session.ID)
	}

	audit.Log(ctx, audit.Event{
		Type:   audit.EventSessionAuthorize,
		UserID: userID,
		Details: map[string]interface{}{
			"session_id": session.ID,
			"tenancy":    session.Tenancy().String(),
		},
	})

	return nil
}

// resolveLostBind distinguishes why a conditional bind matched no row: an
// already-bound session is idempotent success, an expired one is refused.
func (s *DeviceSessionService) resolveLostBind(ctx context.Context, sessionID string) error {
	current, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if current == nil {
		return apperrors.InvalidPollingCode()
	}

	if current.Authorized() {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventBindConflict,
			Details: map[string]interface{}{"session_id": sessionID},
		})
		log.Info().Str("sessionId", sessionID).Msg("bind race lost, session already authorized")
		return nil
	}
	if current.ExpiredAt(s.now()) {
		return apperrors.SessionExpired()
	}

	return apperrors.Internal("Conditional bind failed for an unbound, unexpired session")
}

// Poll maps the current session state to one of three wire states. It never
// mutates: expiry is observed from the clock, which avoids write
// amplification between concurrent pollers. An unknown code is a protocol
// error, not a waiting state. A caller may only observe sessions in its own
// tenancy; a code belonging to another project or branch is reported as
// unknown rather than revealing that the session exists.
func (s *DeviceSessionService) Poll(ctx context.Context, pollingCode string, tenancy model.Tenancy) (*PollResult, error) {
	session, err := s.sessionRepo.FindByPollingCode(ctx, pollingCode)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.InvalidPollingCode()
	}

	if !tenancy.Equal(session.Tenancy()) {
		audit.Log(ctx, audit.Event{
			Type: audit.EventScopeMismatch,
			Details: map[string]interface{}{
				"session_id":      session.ID,
				"session_tenancy": session.Tenancy().String(),
				"caller_tenancy":  tenancy.String(),
				"operation":       "poll",
			},
		})
		return nil, apperrors.InvalidPollingCode()
	}

	// Expiry dominates: once the clock passes expiresAt, bound credentials
	// are never returned, even though the row still exists.
	if session.ExpiredAt(s.now()) {
		return &PollResult{Status: model.DeviceSessionStatusExpired}, nil
	}

	if !session.Authorized() {
		return &PollResult{Status: model.DeviceSessionStatusPending}, nil
	}

	refreshToken, err := s.cipher.Decrypt(*session.RefreshToken)
	if err != nil {
		return nil, apperrors.Internal("Failed to recover refresh token").WithCause(err)
	}

	return &PollResult{
		Status:       model.DeviceSessionStatusAuthorized,
		UserID:       session.UserID,
		AccessToken:  session.AccessToken,
		RefreshToken: &refreshToken,
	}, nil
}
