package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/choosewine/choosewine-api/internal/auth"
	"github.com/choosewine/choosewine-api/internal/domain"
)

type favoriteRequest struct {
	WineID string `json:"wineId"`
}

type favoriteResponse struct {
	ID        string    `json:"id"`
	WineID    string    `json:"wineId"`
	CreatedAt time.Time `json:"createdAt"`
}

type favoriteListResponse struct {
	Items []favoriteResponse `json:"items"`
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	favorites, err := s.repo.Favorites.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list favorites")
		return
	}
	items := make([]favoriteResponse, 0, len(favorites))
	for _, f := range favorites {
		items = append(items, toFavoriteResponse(f))
	}
	s.respondJSON(w, http.StatusOK, favoriteListResponse{Items: items})
}

func (s *Server) handleCreateFavorite(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req favoriteRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	wineID := strings.TrimSpace(req.WineID)
	if wineID == "" {
		s.respondServiceError(w, r, domain.NewValidationError("wineId", "is required"), "Failed to add favorite")
		return
	}

	fav, err := s.repo.Favorites.Create(r.Context(), identity.UserID, wineID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to add favorite")
		return
	}
	s.invalidateRecommendations(r.Context(), identity.UserID)
	s.respondJSON(w, http.StatusCreated, toFavoriteResponse(fav))
}

func (s *Server) handleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	if err := s.repo.Favorites.Delete(r.Context(), identity.UserID, idParam(r)); err != nil {
		s.respondServiceError(w, r, err, "Failed to remove favorite")
		return
	}
	s.invalidateRecommendations(r.Context(), identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func toFavoriteResponse(f domain.Favorite) favoriteResponse {
	return favoriteResponse{ID: f.ID, WineID: f.WineID, CreatedAt: f.CreatedAt}
}
