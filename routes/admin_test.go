package routes

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/glebarez/sqlite"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var adminDBSeq int

// buildAdminTestApp creates a minimal Iris app with the admin routes and JWT
// verifier, backed by an empty in-memory database.
func buildAdminTestApp(t *testing.T) *iris.Application {
	t.Helper()
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")

	adminDBSeq++
	dsn := fmt.Sprintf("file:admindb%d?mode=memory&cache=shared", adminDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Listing{}, &models.Booking{},
		&models.Escrow{}, &models.Payout{}, &models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	storage.DB = db

	app := iris.New()

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} { return new(utils.AccessToken) })

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/users", AdminListUsers)
		admin.Get("/stats", AdminStats)
		admin.Get("/escrows", AdminListEscrows)
		admin.Get("/payouts", AdminListPayouts)
	}
	if err := app.Build(); err != nil {
		t.Fatalf("build app: %v", err)
	}
	return app
}

// signAdminTestToken returns a signed JWT with the given role
func signAdminTestToken(role string) string {
	signer := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), 0)
	token, _ := signer.Sign(utils.AccessToken{ID: 1, Role: role})
	return string(token)
}

func adminGet(app *iris.Application, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	return resp
}

func TestAdminRoutesRBAC(t *testing.T) {
	app := buildAdminTestApp(t)

	paths := []string{"/api/admin/users", "/api/admin/stats", "/api/admin/escrows", "/api/admin/payouts"}

	for _, path := range paths {
		// no token -> rejected by the verifier
		if resp := adminGet(app, path, ""); resp.Code == http.StatusOK {
			t.Fatalf("%s: expected non-200 without token, got %d", path, resp.Code)
		}

		// plain user -> 403
		if resp := adminGet(app, path, signAdminTestToken("user")); resp.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for user role, got %d", path, resp.Code)
		}

		// admin -> 200 (empty data is fine)
		if resp := adminGet(app, path, signAdminTestToken("admin")); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 for admin role, got %d: %s", path, resp.Code, resp.Body.String())
		}

		// super_admin passes the same gate
		if resp := adminGet(app, path, signAdminTestToken("super_admin")); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 for super_admin role, got %d", path, resp.Code)
		}
	}
}
