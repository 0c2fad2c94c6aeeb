// middleware/agent_context.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AgentContextMiddleware extracts the calling agent's identity set by the
// Gateway. Secured routes (everything that mutates queue or tournament
// state) require X-Agent-ID; read-only routes pass through without it.
func AgentContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		agentID := c.Get("X-Agent-ID")
		sessionID := c.Get("X-Session-ID")
		scopesStr := c.Get("X-Agent-Scopes")

		if c.Method() != fiber.MethodGet && agentID == "" {
			log.Printf("[AGENT_CTX] X-Agent-ID required but missing on %s %s", c.Method(), c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Agent-ID, request must come through gateway with agent context",
			})
		}

		var scopes []string
		if scopesStr != "" {
			for _, s := range strings.Split(scopesStr, ",") {
				s = strings.TrimSpace(s)
				if s != "" {
					scopes = append(scopes, s)
				}
			}
		}

		c.Locals("agent_id", agentID)
		c.Locals("session_id", sessionID)
		c.Locals("agent_scopes", scopes)

		return c.Next()
	}
}
