package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/server/auth"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/gin-gonic/gin"
)

func TestOrigin_PrefersForwardedFor(t *testing.T) {
	router := gin.New()
	router.Use(Origin())

	var got models.Origin
	router.GET("/probe", func(c *gin.Context) {
		got = originFrom(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "portal-web/1.2")
	router.ServeHTTP(httptest.NewRecorder(), req)

	if got.Addr != "203.0.113.9" {
		t.Fatalf("addr: %q", got.Addr)
	}
	if got.Agent != "portal-web/1.2" {
		t.Fatalf("agent: %q", got.Agent)
	}
}

func TestOrigin_FallsBackToPeer(t *testing.T) {
	router := gin.New()
	router.Use(Origin())

	var got models.Origin
	router.GET("/probe", func(c *gin.Context) {
		got = originFrom(c)
		c.Status(http.StatusOK)
	})

	// httptest.NewRequest pins the peer to 192.0.2.1:1234.
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if got.Addr != "192.0.2.1" {
		t.Fatalf("addr: %q", got.Addr)
	}
}

func TestAuthenticate(t *testing.T) {
	router := gin.New()
	router.Use(Authenticate([]byte(testSecret)))

	var gotActor, gotRole string
	router.GET("/probe", func(c *gin.Context) {
		gotActor, gotRole = c.GetString(ctxKeyActorID), roleFrom(c)
		c.Status(http.StatusOK)
	})

	send := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := send(bearerFor(t, "a1", models.RoleDoctor)); w.Code != http.StatusOK {
		t.Fatalf("valid token: %d %s", w.Code, w.Body.String())
	}
	if gotActor != "a1" || gotRole != models.RoleDoctor {
		t.Fatalf("context actor=%q role=%q", gotActor, gotRole)
	}

	if w := send(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: %d", w.Code)
	}
	if w := send("Bearer not-a-token"); w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", w.Code)
	}
	if w := send("Basic abc"); w.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer scheme: %d", w.Code)
	}

	expired, err := auth.GenerateToken("a1", models.RoleDoctor, []byte(testSecret), -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if w := send("Bearer " + expired); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: %d", w.Code)
	}
}

func TestRoleGates(t *testing.T) {
	tests := []struct {
		role      string
		clinician int
		admin     int
	}{
		{models.RoleDoctor, http.StatusOK, http.StatusForbidden},
		{models.RoleNurse, http.StatusOK, http.StatusForbidden},
		{models.RolePatient, http.StatusForbidden, http.StatusForbidden},
		{models.RoleAdmin, http.StatusForbidden, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) { c.Set(ctxKeyRole, tc.role) })

			ok := func(c *gin.Context) { c.Status(http.StatusOK) }
			router.GET("/clinician", RequireClinician(), ok)
			router.GET("/admin", RequireAdmin(), ok)

			for path, want := range map[string]int{"/clinician": tc.clinician, "/admin": tc.admin} {
				w := httptest.NewRecorder()
				router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				if w.Code != want {
					t.Fatalf("%s as %s: got %d want %d", path, tc.role, w.Code, want)
				}
			}
		})
	}
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad title", common.ErrValidation), http.StatusBadRequest},
		{common.ErrorUnauthorized, http.StatusUnauthorized},
		{common.ErrInvalidToken, http.StatusUnauthorized},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{common.ErrRefreshTokenExpired, http.StatusUnauthorized},
		{common.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", common.ErrorNotFound), http.StatusNotFound},
		{common.ErrConflict, http.StatusConflict},
		{common.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("pq: connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteError_MasksInternalDetail(t *testing.T) {
	router := gin.New()
	router.GET("/boom", func(c *gin.Context) {
		writeError(c, fmt.Errorf("pq: password authentication failed for user postgres"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "internal error" {
		t.Fatalf("internal detail leaked: %v", body["error"])
	}
}
