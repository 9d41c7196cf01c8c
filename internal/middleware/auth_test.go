package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/studyforge/api/internal/auth"
)

const authTestSecret = "auth-test-secret"

func setupAuthApp(t *testing.T) *fiber.App {
	t.Helper()

	m := NewLegacyAuthMiddleware(authTestSecret)

	app := fiber.New()
	app.Get("/protected", m.Authenticate(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userId": GetUserID(c)})
	})
	return app
}

func doProtected(t *testing.T, app *fiber.App, authHeader string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestAuthenticate_ValidToken(t *testing.T) {
	app := setupAuthApp(t)

	token, err := auth.GenerateLegacyToken("user-1", "user@example.com", authTestSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	resp := doProtected(t, app, "Bearer "+token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	app := setupAuthApp(t)

	resp := doProtected(t, app, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticate_MalformedHeader(t *testing.T) {
	app := setupAuthApp(t)

	resp := doProtected(t, app, "Token abc123")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	app := setupAuthApp(t)

	token, err := auth.GenerateLegacyToken("user-1", "user@example.com", "some-other-secret", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	resp := doProtected(t, app, "Bearer "+token)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	app := setupAuthApp(t)

	token, err := auth.GenerateLegacyToken("user-1", "user@example.com", authTestSecret, -time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	resp := doProtected(t, app, "Bearer "+token)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
