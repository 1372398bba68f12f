package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"pixelboard/internal/board"
)

func newAdminTestServer(t *testing.T, secret string) *Server {
	t.Helper()
	s, _, _ := newTestServer(t)
	s.adminSecret = secret
	return s
}

func signAdminToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwtlib.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestRequireAdminRejectsMissingToken(t *testing.T) {
	s := newAdminTestServer(t, "shh")
	req := httptest.NewRequest(http.MethodPost, "/admin/reset-region/0/0", nil)
	w := httptest.NewRecorder()
	s.requireAdmin(s.handleAdminResetRegion)(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireAdminRejectsBadToken(t *testing.T) {
	s := newAdminTestServer(t, "shh")
	req := httptest.NewRequest(http.MethodPost, "/admin/reset-region/0/0", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	s.requireAdmin(s.handleAdminResetRegion)(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestHandleAdminResetRegionClearsState(t *testing.T) {
	s := newAdminTestServer(t, "shh")
	store, b := s.store, s.board
	drawPixel(t, b, store, 3, 3, "acct-reset", "445566", 2000)

	before, err := b.GetRegion(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("get region: %v", err)
	}
	allZero := true
	for _, bt := range before {
		if bt != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatalf("expected region to have non-zero content before reset")
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/reset-region/0/0", nil)
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "shh"))
	req = mux.SetURLVars(req, map[string]string{"rx": "0", "ry": "0"})
	w := httptest.NewRecorder()
	s.requireAdmin(s.handleAdminResetRegion)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	after, err := b.GetRegion(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("get region after reset: %v", err)
	}
	if len(after) != board.RegionBlobSize {
		t.Fatalf("region size = %d, want %d", len(after), board.RegionBlobSize)
	}
	for i, bt := range after {
		if bt != 0 {
			t.Fatalf("region byte %d = %d, want 0 after reset", i, bt)
		}
	}
}
