// Package api exposes the authentication core over HTTP. Routes run behind a
// strategy-bound middleware that resolves the signed-request credential into
// a principal before any handler executes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/emberid/ember/assertion"
	"github.com/emberid/ember/auth"
	"github.com/emberid/ember/customs"
	"github.com/emberid/ember/domain"
	"github.com/emberid/ember/logger"
	"github.com/emberid/ember/totp"
)

const principalKey = "principal"

// Codes are digits only, bounded length; anything else is rejected before
// the manager sees it.
var codePattern = regexp.MustCompile("^[0-9]{6,8}$")

// EmailResolver supplies the account email for a uid. Handlers receive
// enriched values as plain inputs rather than re-deriving them.
type EmailResolver func(ctx context.Context, uid string) (string, error)

// SyntheticEmailResolver derives <uid>@<domain> without a directory lookup.
func SyntheticEmailResolver(domainName string) EmailResolver {
	return func(_ context.Context, uid string) (string, error) {
		return fmt.Sprintf("%s@%s", uid, domainName), nil
	}
}

type Handler struct {
	sessions *auth.Resolver
	totp     *totp.Manager
	minter   *assertion.Minter
	email    EmailResolver
}

func NewHandler(sessions *auth.Resolver, totpManager *totp.Manager, minter *assertion.Minter, email EmailResolver) *Handler {
	return &Handler{sessions: sessions, totp: totpManager, minter: minter, email: email}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.HandleHealth)

	protected := g.Group("")
	protected.Use(h.SessionAuthMiddleware)
	protected.POST("/totp/create", h.HandleTotpCreate)
	protected.POST("/totp/destroy", h.HandleTotpDestroy)
	protected.GET("/totp/exists", h.HandleTotpExists)
	protected.POST("/session/verify/totp", h.HandleSessionVerifyTotp)
	protected.POST("/oauth/token", h.HandleOAuthToken)
}

// SessionAuthMiddleware resolves the signed-request credential against the
// session token store and checks the request signature. Every failure is the
// same generic authentication failure.
func (h *Handler) SessionAuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sr, err := auth.ParseAuthorization(c.Request().Header.Get("Authorization"))
		if err != nil {
			return h.Failure(c, err)
		}

		principal, err := h.sessions.Resolve(c.Request().Context(), sr.TokenID)
		if err != nil {
			return h.Failure(c, err)
		}

		sr.Method = c.Request().Method
		sr.URI = c.Request().URL.RequestURI()
		sr.Host = c.Request().Host
		if err := auth.VerifyMAC(sr, principal); err != nil {
			return h.Failure(c, err)
		}

		c.Set(principalKey, principal)
		return next(c)
	}
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleTotpCreate(c echo.Context) error {
	session := c.Get(principalKey).(*domain.Token)

	email, err := h.email(c.Request().Context(), session.UID)
	if err != nil {
		return h.Failure(c, domain.Upstream("api.totp.create", err))
	}

	result, err := h.totp.Create(c.Request().Context(), session, email)
	if err != nil {
		return h.Failure(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) HandleTotpDestroy(c echo.Context) error {
	session := c.Get(principalKey).(*domain.Token)

	email, err := h.email(c.Request().Context(), session.UID)
	if err != nil {
		return h.Failure(c, domain.Upstream("api.totp.destroy", err))
	}

	if err := h.totp.Destroy(c.Request().Context(), session, email); err != nil {
		return h.Failure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

func (h *Handler) HandleTotpExists(c echo.Context) error {
	session := c.Get(principalKey).(*domain.Token)

	email, err := h.email(c.Request().Context(), session.UID)
	if err != nil {
		return h.Failure(c, domain.Upstream("api.totp.exists", err))
	}

	exists, err := h.totp.Exists(c.Request().Context(), session, email)
	if err != nil {
		return h.Failure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"exists": exists})
}

func (h *Handler) HandleSessionVerifyTotp(c echo.Context) error {
	session := c.Get(principalKey).(*domain.Token)

	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if !codePattern.MatchString(body.Code) {
		return h.Error(c, http.StatusBadRequest, "Invalid code format", nil)
	}

	email, err := h.email(c.Request().Context(), session.UID)
	if err != nil {
		return h.Failure(c, domain.Upstream("api.session.verify", err))
	}

	success, err := h.totp.VerifyCode(c.Request().Context(), session, email, body.Code)
	if err != nil {
		return h.Failure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": success})
}

func (h *Handler) HandleOAuthToken(c echo.Context) error {
	session := c.Get(principalKey).(*domain.Token)

	var body struct {
		Scope string `json:"scope"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	payload, err := h.minter.MintOAuthToken(c.Request().Context(), session, body.Scope)
	if err != nil {
		return h.Failure(c, err)
	}
	return c.JSONBlob(http.StatusOK, payload)
}

// Failure translates a core failure into its HTTP response. Upstream detail
// is logged, never returned to the caller.
func (h *Handler) Failure(c echo.Context, err error) error {
	var blocked *customs.BlockedError
	if errors.As(err, &blocked) {
		c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(blocked.RetryAfter.Seconds())))
		return h.Error(c, http.StatusTooManyRequests, "Request blocked", nil)
	}

	switch domain.CodeOf(err) {
	case domain.FailureInvalidToken:
		return h.Error(c, http.StatusUnauthorized, "Invalid authentication token", nil)
	case domain.FailureUnverifiedSession:
		return h.Error(c, http.StatusBadRequest, "Unverified session", nil)
	case domain.FailureRateLimited:
		return h.Error(c, http.StatusTooManyRequests, "Request blocked", nil)
	default:
		logger.Log.Error("upstream failure",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return h.Error(c, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// Helper for professional errors
func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	resp := map[string]any{
		"status": message,
		"code":   code,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(code, resp)
}
