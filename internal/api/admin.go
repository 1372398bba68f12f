package api

import (
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// requireAdmin wraps next with a bearer-JWT check against s.adminSecret,
// matching the teacher's Authorization-header convention.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenStr == "" {
			http.Error(w, `{"error":"missing Authorization header"}`, http.StatusUnauthorized)
			return
		}

		token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(s.adminSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, `{"error":"invalid admin token"}`, http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// handleAdminResetRegion wipes a single region back to its all-zero state:
// the blob, its meta, and its timestamp index. Used by operators to clear
// vandalism or reset a demo board without restarting the whole service.
// Routed through Board.Reset so the region cache never serves the stale
// pre-reset blob to a subsequent GetRegion.
func (s *Server) handleAdminResetRegion(w http.ResponseWriter, r *http.Request) {
	rx, ry, ok := parseRegionCoords(r)
	if !ok {
		http.Error(w, "bad region coordinates", http.StatusBadRequest)
		return
	}

	if err := s.board.Reset(r.Context(), rx, ry); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
