package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/choosewine/choosewine-api/internal/auth"
	"github.com/choosewine/choosewine-api/internal/domain"
)

const maxHistoryLimit = 200

type historyResponse struct {
	ID         string    `json:"id"`
	WineID     string    `json:"wineId"`
	AccessedAt time.Time `json:"accessedAt"`
}

type historyListResponse struct {
	Items []historyResponse `json:"items"`
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	limit := 50
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed <= 0 {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	entries, err := s.repo.History.ListByUser(r.Context(), identity.UserID, limit)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list history")
		return
	}
	s.respondJSON(w, http.StatusOK, historyListResponse{Items: toHistoryResponses(entries)})
}

func toHistoryResponses(entries []domain.HistoryEntry) []historyResponse {
	items := make([]historyResponse, 0, len(entries))
	for _, h := range entries {
		items = append(items, historyResponse{ID: h.ID, WineID: h.WineID, AccessedAt: h.AccessedAt})
	}
	return items
}
