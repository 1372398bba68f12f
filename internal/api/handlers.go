package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"pixelboard/internal/board"
	"pixelboard/internal/kv"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseRegionCoords(r *http.Request) (rx, ry int64, ok bool) {
	vars := mux.Vars(r)
	x, err1 := strconv.ParseInt(vars["rx"], 10, 64)
	y, err2 := strconv.ParseInt(vars["ry"], 10, 64)
	return x, y, err1 == nil && err2 == nil
}

// handleRegionBlob serves GET /api/region/{rx}/{ry}.
func (s *Server) handleRegionBlob(w http.ResponseWriter, r *http.Request) {
	rx, ry, ok := parseRegionCoords(r)
	if !ok {
		http.Error(w, "bad region coordinates", http.StatusBadRequest)
		return
	}

	blob, err := s.board.GetRegion(r.Context(), rx, ry)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	lastUpdated, err := s.board.RegionMeta(r.Context(), rx, ry)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	if lastUpdated > 0 {
		w.Header().Set("X-Last-Updated", strconv.FormatUint(lastUpdated, 10))
	} else {
		w.Header().Set("X-Last-Updated", "")
	}
	w.Write(blob)
}

type regionMetaResponse struct {
	RX          int64  `json:"rx"`
	RY          int64  `json:"ry"`
	LastUpdated uint64 `json:"last_updated"`
}

// handleRegionMeta serves GET /api/region/{rx}/{ry}/meta.
func (s *Server) handleRegionMeta(w http.ResponseWriter, r *http.Request) {
	rx, ry, ok := parseRegionCoords(r)
	if !ok {
		http.Error(w, "bad region coordinates", http.StatusBadRequest)
		return
	}
	lastUpdated, err := s.board.RegionMeta(r.Context(), rx, ry)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, regionMetaResponse{RX: rx, RY: ry, LastUpdated: lastUpdated})
}

// handleRegionsBatchMeta serves GET /api/regions?coords=rx0,ry0,rx1,ry1,...
func (s *Server) handleRegionsBatchMeta(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("coords")
	nums := splitInts(raw)

	out := make([]regionMetaResponse, 0, len(nums)/2)
	for i := 0; i+1 < len(nums); i += 2 {
		rx, ry := nums[i], nums[i+1]
		lastUpdated, err := s.board.RegionMeta(r.Context(), rx, ry)
		if err != nil {
			continue
		}
		out = append(out, regionMetaResponse{RX: rx, RY: ry, LastUpdated: lastUpdated})
	}
	writeJSON(w, http.StatusOK, out)
}

func splitInts(raw string) []int64 {
	var out []int64
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				if n, err := strconv.ParseInt(raw[start:i], 10, 64); err == nil {
					out = append(out, n)
				}
			}
			start = i + 1
		}
	}
	return out
}

// handleRegionTimestamps serves GET /api/region/{rx}/{ry}/timestamps.
func (s *Server) handleRegionTimestamps(w http.ResponseWriter, r *http.Request) {
	rx, ry, ok := parseRegionCoords(r)
	if !ok {
		http.Error(w, "bad region coordinates", http.StatusBadRequest)
		return
	}
	key := "pixel_ts:" + board.RegionKey{RX: rx, RY: ry}.String()
	cutoff := float64(kv.Now() - board.OwnershipMS)

	members, err := s.store.ZRangeByScore(r.Context(), key, cutoff, 1<<62)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	scores := make(map[string]float64, len(members))
	for _, m := range members {
		if score, err := s.store.ZScore(r.Context(), key, m); err == nil {
			scores[m] = score
		}
	}

	out := make([][3]int64, 0, len(members))
	for _, m := range members {
		lx, ly, ok := parseLocalCoordPair(m)
		if !ok {
			continue
		}
		out = append(out, [3]int64{lx, ly, int64(scores[m])})
	}
	writeJSON(w, http.StatusOK, out)
}

func parseLocalCoordPair(s string) (lx, ly int64, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			x, err1 := strconv.ParseInt(s[:i], 10, 64)
			y, err2 := strconv.ParseInt(s[i+1:], 10, 64)
			return x, y, err1 == nil && err2 == nil
		}
	}
	return 0, 0, false
}

type accountStat struct {
	AccountID  string `json:"account_id"`
	PixelCount int64  `json:"pixel_count"`
}

// handleStatsAccounts serves GET /api/stats/accounts.
func (s *Server) handleStatsAccounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.HGetAll(r.Context(), "account_pixel_count")
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	reg := s.board.Registry
	out := make([]accountStat, 0, len(counts))
	for ownerIDStr, countStr := range counts {
		id, err := strconv.ParseUint(ownerIDStr, 10, 32)
		if err != nil {
			continue
		}
		account, err := reg.AccountFor(r.Context(), uint32(id))
		if err != nil {
			continue
		}
		n, _ := strconv.ParseInt(countStr, 10, 64)
		out = append(out, accountStat{AccountID: account, PixelCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	writeJSON(w, http.StatusOK, out)
}

// handleStatsRegion serves GET /api/stats/region/{rx}/{ry}.
func (s *Server) handleStatsRegion(w http.ResponseWriter, r *http.Request) {
	rx, ry, ok := parseRegionCoords(r)
	if !ok {
		http.Error(w, "bad region coordinates", http.StatusBadRequest)
		return
	}
	key := board.RegionKey{RX: rx, RY: ry}.String()
	v, err := s.store.HGet(r.Context(), "region_pixel_count", key)
	if err != nil && err != kv.ErrNotFound {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

type regionCoordResponse struct {
	RX int64 `json:"rx"`
	RY int64 `json:"ry"`
}

// handleOpenRegions serves GET /api/open-regions.
func (s *Server) handleOpenRegions(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.SMembers(r.Context(), "open_regions")
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]regionCoordResponse, 0, len(members))
	for _, m := range members {
		rx, ry, ok := parseLocalCoordPairColon(m)
		if !ok {
			continue
		}
		out = append(out, regionCoordResponse{RX: rx, RY: ry})
	}
	writeJSON(w, http.StatusOK, out)
}

func parseLocalCoordPairColon(s string) (rx, ry int64, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			x, err1 := strconv.ParseInt(s[:i], 10, 64)
			y, err2 := strconv.ParseInt(s[i+1:], 10, 64)
			return x, y, err1 == nil && err2 == nil
		}
	}
	return 0, 0, false
}

// handleAccountLookup serves GET /api/account/{id}.
func (s *Server) handleAccountLookup(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, "bad account id", http.StatusBadRequest)
		return
	}
	account, err := s.board.Registry.AccountFor(r.Context(), uint32(id))
	if err == kv.ErrNotFound {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write([]byte(account))
}

// handleHealth serves GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	lastBlock, err := s.ingestor.LastProcessedHeight(ctx)
	if err != nil {
		lastBlock = 0
	}
	queueLen, err := s.store.LLen(ctx, "draw_queue")
	if err != nil {
		queueLen = 0
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "ok",
		"last_processed_block": lastBlock,
		"queue_length":          queueLen,
	})
}
