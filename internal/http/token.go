package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/lightkeepers/fieldsync/internal/credential"
)

type issueReq struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// issueTokenHandler mints an offline token. Issuing happens opportunistically
// while the device is online; the token then works for its full TTL with zero
// connectivity.
func issueTokenHandler(creds *credential.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req issueReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		}

		tok, err := creds.Issue(req.UserID, req.Roles, req.Permissions)
		if err != nil {
			log.Errorf("issue token: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "issue error"})
		}
		return c.JSON(http.StatusOK, tok)
	}
}

// renewTokenHandler re-issues the caller's token when it is inside the renew
// window. Outside the window the current token is still fine and the handler
// says so without minting a new one.
func renewTokenHandler(creds *credential.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, _ := c.Get("token").(string)
		res := creds.Verify(c.Request().Context(), token)
		if !res.Valid {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authorized"})
		}

		if !creds.ShouldRenew(c.Request().Context(), token) {
			return c.JSON(http.StatusOK, map[string]any{
				"renewed":    false,
				"expires_at": res.ExpiresAt,
			})
		}

		tok, err := creds.Issue(res.UserID, res.Roles, res.Permissions)
		if err != nil {
			log.Errorf("renew token: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "renew error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"renewed": true,
			"token":   tok,
		})
	}
}

type revokeReq struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func revokeTokenHandler(creds *credential.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		switch {
		case req.Token != "":
			if err := creds.Revoke(c.Request().Context(), req.Token); err != nil {
				log.Errorf("revoke token: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "revoke error"})
			}
		case req.UserID != "":
			if err := creds.RevokeAllForUser(c.Request().Context(), req.UserID); err != nil {
				log.Errorf("revoke user %s: %v", req.UserID, err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "revoke error"})
			}
		default:
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "token or user_id required"})
		}
		return c.JSON(http.StatusOK, map[string]bool{"revoked": true})
	}
}
