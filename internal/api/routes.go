package api

import (
	"time"

	"github.com/gorilla/mux"
)

// statsAccountsCacheTTL bounds how stale the global account leaderboard can
// be: it scans every entry in account_pixel_count and resolves each owner
// id, so caching it protects the registry from being hammered by pollers.
const statsAccountsCacheTTL = 5 * time.Second

func registerReadRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/api/region/{rx}/{ry}", s.handleRegionBlob).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/region/{rx}/{ry}/meta", s.handleRegionMeta).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/region/{rx}/{ry}/timestamps", s.handleRegionTimestamps).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/regions", s.handleRegionsBatchMeta).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/stats/accounts", cachedHandler(statsAccountsCacheTTL, s.handleStatsAccounts)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/stats/region/{rx}/{ry}", s.handleStatsRegion).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/open-regions", s.handleOpenRegions).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/account/{id}", s.handleAccountLookup).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/health", s.handleHealth).Methods("GET", "OPTIONS")
}

func registerWebSocketRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET", "OPTIONS")
}

func registerAdminRoutes(r *mux.Router, s *Server) {
	r.Handle("/admin/reset-region/{rx}/{ry}", s.requireAdmin(s.handleAdminResetRegion)).Methods("POST", "OPTIONS")
}
