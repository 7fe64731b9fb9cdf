package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/utils"
)

const principalKey = "principal"

// JWTProtected returns a middleware that validates JWT bearer tokens and
// resolves the caller into a typed principal, stored once per request. Core
// services receive the principal explicitly and never look at claims again.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		principal, ok := principalFromClaims(claims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "token missing identity claims")
		}

		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// PrincipalFromCtx returns the principal resolved by JWTProtected, if any.
func PrincipalFromCtx(c *fiber.Ctx) (domain.Principal, bool) {
	principal, ok := c.Locals(principalKey).(domain.Principal)
	return principal, ok
}

// PrincipalFromLocals reads a principal out of a generic locals lookup, used
// by the websocket handler whose connection object carries fiber locals.
func PrincipalFromLocals(value interface{}) (domain.Principal, bool) {
	principal, ok := value.(domain.Principal)
	return principal, ok
}

// RequireRole guards a route group: the resolved principal must carry one of
// the allowed roles. With no roles listed any authenticated caller passes.
func RequireRole(roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromCtx(c)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if len(roles) == 0 {
			return c.Next()
		}
		for _, role := range roles {
			if principal.Role == role {
				return c.Next()
			}
		}
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
}

func principalFromClaims(claims jwt.MapClaims) (domain.Principal, bool) {
	userID := firstStringClaim(claims, "sub", "user_id", "id")
	if userID == "" {
		return domain.Principal{}, false
	}

	role, ok := domain.ParseRole(firstStringClaim(claims, "role"))
	if !ok {
		return domain.Principal{}, false
	}

	return domain.Principal{
		UserID:      userID,
		DisplayName: firstStringClaim(claims, "name", "display_name"),
		Role:        role,
	}, true
}

func firstStringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		value, ok := claims[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
