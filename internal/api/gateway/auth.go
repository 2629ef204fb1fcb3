// auth.go implements the login and logout endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/careline/careline/internal/auth"
	"github.com/careline/careline/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// CredentialVerifier checks an email/password pair
type CredentialVerifier interface {
	Verify(email, password string) bool
}

// SessionIssuer issues and revokes session tokens
type SessionIssuer interface {
	Issue(ctx context.Context, identity string) (string, error)
	Revoke(ctx context.Context, token string) (bool, error)
}

// AuthHandlers handles login and logout
type AuthHandlers struct {
	credentials CredentialVerifier
	sessions    SessionIssuer
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(credentials CredentialVerifier, sessions SessionIssuer) *AuthHandlers {
	return &AuthHandlers{credentials: credentials, sessions: sessions}
}

// LoginRequest is the POST /api/login body. It is validated after Normalize.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=3"`
}

// Normalize trims both fields and lower-cases the email
func (r *LoginRequest) Normalize() {
	r.Email = auth.NormalizeEmail(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

// loginMessages maps "<field>.<tag>" validation failures to client messages
var loginMessages = map[string]string{
	"email.required":    "Email address is required",
	"email.email":       "Please enter a valid email address",
	"password.required": "Password is required",
	"password.min":      "Password must be at least 3 characters long",
}

// LogoutRequest is the POST /api/logout body
type LogoutRequest struct {
	Token string `json:"token"`
}

// @Summary      Log in
// @Description  Exchanges an email and password for an opaque session token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, message"
// @Failure      401  {object}  map[string]interface{}  "error: Invalid email or password"
// @Failure      422  {object}  map[string]interface{}  "error, field"
// @Failure      503  {object}  map[string]interface{}  "error: session store unavailable"
// @Router       /api/login [post]
// LoginHandler verifies credentials and issues a session token
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Decode, normalise, then run the binding tags, so padded or mixed-case
		// emails are accepted.
		var req LoginRequest
		if c.Request.Body == nil || json.NewDecoder(c.Request.Body).Decode(&req) != nil {
			telemetry.LoginAttemptsTotal.WithLabelValues("invalid_input").Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Request body must be a JSON object with email and password"})
			return
		}
		req.Normalize()
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			telemetry.LoginAttemptsTotal.WithLabelValues("invalid_input").Inc()
			respondValidation(c, err)
			return
		}
		email, password := req.Email, req.Password

		if !h.credentials.Verify(email, password) {
			telemetry.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			slog.Info("login rejected", "client_ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		token, err := h.sessions.Issue(c.Request.Context(), email)
		if err != nil {
			telemetry.LoginAttemptsTotal.WithLabelValues("store_error").Inc()
			slog.Error("failed to issue session", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Login is temporarily unavailable"})
			return
		}

		telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"message": "Login successful",
		})
	}
}

// @Summary      Log out
// @Description  Revokes the session token. Always succeeds, including for unknown tokens.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body   body   LogoutRequest  false  "Token"
// @Param        token  query  string         false  "Token"
// @Success      200  {object}  map[string]interface{}  "message: Logged out successfully"
// @Router       /api/logout [post]
// LogoutHandler revokes the caller's session
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			var req LogoutRequest
			// A missing or malformed body is treated as "no token".
			_ = c.ShouldBindJSON(&req)
			token = req.Token
		}
		if token == "" {
			token = bearerToken(c)
		}

		if token != "" {
			if _, err := h.sessions.Revoke(c.Request.Context(), strings.TrimSpace(token)); err != nil {
				slog.Error("failed to revoke session", "error", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
	}
}

// respondValidation writes a 422 naming the first failing field when err carries
// validator.ValidationErrors, and a generic 422 otherwise.
func respondValidation(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		msg, ok := loginMessages[field+"."+verrs[0].Tag()]
		if !ok {
			msg = "Invalid " + field
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg, "field": field})
		return
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request"})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
