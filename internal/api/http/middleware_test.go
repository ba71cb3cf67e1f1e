package http

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func newGuardedApp(token string) *fiber.App {
	app := fiber.New()
	app.Use(errorHandlingMiddleware(zap.NewNop()))
	app.Get("/guarded", bearerAuth(token), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestBearerAuthDisabledAnswersNotFound(t *testing.T) {
	app := newGuardedApp("")

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/guarded", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("disabled API must answer 404, got %d", resp.StatusCode)
	}
}

func TestBearerAuthRejectsBadToken(t *testing.T) {
	app := newGuardedApp("secret")

	req := httptest.NewRequest(fiber.MethodGet, "/guarded", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer wrong")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("bad token must answer 401, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/guarded", nil))
	if err != nil {
		t.Fatalf("request without header: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing token must answer 401, got %d", resp.StatusCode)
	}
}

func TestBearerAuthAdmitsValidToken(t *testing.T) {
	app := newGuardedApp("secret")

	req := httptest.NewRequest(fiber.MethodGet, "/guarded", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer secret")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("valid token must pass, got %d", resp.StatusCode)
	}
}
