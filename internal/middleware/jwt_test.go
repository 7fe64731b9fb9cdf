package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/middleware"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newProtectedApp(extra ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handlers := append([]fiber.Handler{middleware.JWTProtected(testSecret)}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		principal, _ := middleware.PrincipalFromCtx(c)
		return c.JSON(principal)
	})
	app.Get("/protected", handlers...)
	return app
}

func TestJWTProtectedResolvesPrincipal(t *testing.T) {
	app := newProtectedApp()

	token := signedToken(t, testSecret, jwt.MapClaims{
		"sub":  "student-1",
		"role": "student",
		"name": "Ana",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejections(t *testing.T) {
	app := newProtectedApp()

	cases := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"garbage token", "Bearer not-a-token"},
		{"wrong secret", "Bearer " + signedToken(t, "other-secret", jwt.MapClaims{"sub": "student-1", "role": "student"})},
		{"expired", "Bearer " + signedToken(t, testSecret, jwt.MapClaims{"sub": "student-1", "role": "student", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"missing subject", "Bearer " + signedToken(t, testSecret, jwt.MapClaims{"role": "student"})},
		{"unknown role", "Bearer " + signedToken(t, testSecret, jwt.MapClaims{"sub": "student-1", "role": "janitor"})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", tc.token)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := newProtectedApp(middleware.RequireRole(domain.RoleTeacher, domain.RoleAdmin))

	studentToken := signedToken(t, testSecret, jwt.MapClaims{"sub": "student-1", "role": "student"})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	teacherToken := signedToken(t, testSecret, jwt.MapClaims{"sub": "teacher-1", "role": "teacher"})
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+teacherToken)

	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
