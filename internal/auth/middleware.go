package auth

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"qindex/internal/engine"
)

// Principal is the authenticated API client, set by AuthMiddleware.
type Principal struct {
	ClientID string   `json:"client_id"`
	Roles    []string `json:"roles"`
}

// HasRole checks whether the client has a specific role.
func (p *Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// IsAdmin checks whether the client has the admin role.
func (p *Principal) IsAdmin() bool {
	return p.HasRole("admin")
}

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and sets the Principal on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("principal", &Principal{
			ClientID: claims.Subject,
			Roles:    claims.Roles,
		})

		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated client has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := GetPrincipal(c)
		if p == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !p.IsAdmin() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// GetPrincipal extracts the Principal from a Fiber context.
func GetPrincipal(c *fiber.Ctx) *Principal {
	p, _ := c.Locals("principal").(*Principal)
	return p
}
