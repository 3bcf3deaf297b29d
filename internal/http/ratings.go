package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/choosewine/choosewine-api/internal/auth"
	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/rating"
)

type ratingCreateRequest struct {
	WineID  string   `json:"wineId"`
	Rating  *float64 `json:"rating"`
	Comment *string  `json:"comment"`
}

type ratingUpdateRequest struct {
	Rating  *float64 `json:"rating"`
	Comment *string  `json:"comment"`
}

type ratingResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	WineID    string    `json:"wineId"`
	Rating    float64   `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ratingListResponse struct {
	Items []ratingResponse `json:"items"`
}

func (s *Server) handleCreateRating(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req ratingCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Rating == nil {
		s.respondServiceError(w, r, domain.NewValidationError("rating", "is required"), "Failed to create rating")
		return
	}

	created, err := s.ratings.OnRatingCreated(r.Context(), rating.CreateParams{
		UserID:  identity.UserID,
		WineID:  req.WineID,
		Value:   *req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to create rating")
		return
	}
	s.invalidateRecommendations(r.Context(), identity.UserID)

	w.Header().Set("Location", fmt.Sprintf("/ratings/%s", url.PathEscape(created.ID)))
	s.respondJSON(w, http.StatusCreated, toRatingResponse(created))
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	found, err := s.repo.Ratings.GetRating(r.Context(), idParam(r))
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(found))
}

func (s *Server) handleListWineRatings(w http.ResponseWriter, r *http.Request) {
	wineID := idParam(r)
	if _, err := s.repo.Wines.GetByID(r.Context(), wineID); err != nil {
		s.respondServiceError(w, r, err, "Failed to list ratings")
		return
	}
	ratings, err := s.repo.Ratings.ListByWine(r.Context(), wineID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, ratingListResponse{Items: toRatingResponses(ratings)})
}

func (s *Server) handleUpdateRating(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)

	var req ratingUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Rating == nil {
		s.respondServiceError(w, r, domain.NewValidationError("rating", "is required"), "Failed to update rating")
		return
	}

	owner, ok := s.authorizeRatingOwner(w, r, id)
	if !ok {
		return
	}

	updated, err := s.ratings.OnRatingUpdated(r.Context(), id, *req.Rating, req.Comment)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to update rating")
		return
	}
	s.invalidateRecommendations(r.Context(), owner)
	s.respondJSON(w, http.StatusOK, toRatingResponse(updated))
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	owner, ok := s.authorizeRatingOwner(w, r, id)
	if !ok {
		return
	}

	if _, err := s.ratings.OnRatingDeleted(r.Context(), id); err != nil {
		s.respondServiceError(w, r, err, "Failed to delete rating")
		return
	}
	s.invalidateRecommendations(r.Context(), owner)
	w.WriteHeader(http.StatusNoContent)
}

// authorizeRatingOwner lets the rating's author or an admin through and
// returns the author's ID. On failure the response has been written.
func (s *Server) authorizeRatingOwner(w http.ResponseWriter, r *http.Request, ratingID string) (string, bool) {
	existing, err := s.repo.Ratings.GetRating(r.Context(), ratingID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch rating")
		return "", false
	}
	identity, _ := auth.FromContext(r.Context())
	if existing.UserID != identity.UserID && !identity.IsAdmin() {
		s.respondServiceError(w, r, domain.ErrForbidden, "Failed to modify rating")
		return "", false
	}
	return existing.UserID, true
}

func (s *Server) invalidateRecommendations(ctx context.Context, userID string) {
	if s.recommender != nil && userID != "" {
		s.recommender.Invalidate(ctx, userID)
	}
}

func toRatingResponse(r domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		WineID:    r.WineID,
		Rating:    r.Value,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toRatingResponses(ratings []domain.Rating) []ratingResponse {
	items := make([]ratingResponse, 0, len(ratings))
	for _, r := range ratings {
		items = append(items, toRatingResponse(r))
	}
	return items
}
