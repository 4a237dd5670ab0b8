package auth

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"qindex/internal/config"
	"qindex/internal/engine"
)

// AuthHandler issues tokens to the clients listed in the configuration.
type AuthHandler struct {
	clients   map[string]config.ClientConfig
	jwtSecret string
	ttl       time.Duration
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(clients []config.ClientConfig, jwtSecret string, ttl time.Duration) *AuthHandler {
	byID := make(map[string]config.ClientConfig, len(clients))
	for _, cl := range clients {
		if cl.ID == "" || cl.SecretHash == "" {
			log.Printf("WARN: ignoring auth client without id or secret_hash")
			continue
		}
		byID[cl.ID] = cl
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthHandler{clients: byID, jwtSecret: jwtSecret, ttl: ttl}
}

// Token handles POST /api/auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.ClientID == "" || body.ClientSecret == "" {
		return engine.UnauthorizedError("client_id and client_secret are required")
	}

	client, ok := h.clients[body.ClientID]
	if !ok || !CheckSecret(body.ClientSecret, client.SecretHash) {
		return engine.UnauthorizedError("Invalid client credentials")
	}

	token, err := GenerateAccessToken(client.ID, client.Roles, h.jwtSecret, h.ttl)
	if err != nil {
		return engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	return c.JSON(fiber.Map{"data": Token{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.ttl.Seconds()),
	}})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/token", h.Token)
}
