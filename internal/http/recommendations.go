package httpserver

import (
	"net/http"
	"time"

	"github.com/choosewine/choosewine-api/internal/auth"
)

type recommendationResponse struct {
	UserID string         `json:"userId"`
	Items  []wineResponse `json:"items"`
}

type interactionsResponse struct {
	UserID    string               `json:"userId"`
	Favorites []string             `json:"favorites"`
	Ratings   []interactionRating  `json:"ratings"`
	History   []interactionHistory `json:"history"`
}

type interactionRating struct {
	WineID string  `json:"wineId"`
	Rating float64 `json:"rating"`
}

type interactionHistory struct {
	WineID     string    `json:"wineId"`
	AccessedAt time.Time `json:"accessedAt"`
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	wines, err := s.recommender.Recommend(r.Context(), identity.UserID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch recommendations")
		return
	}
	s.respondJSON(w, http.StatusOK, recommendationResponse{
		UserID: identity.UserID,
		Items:  toWineResponses(wines),
	})
}

// handleUserInteractions serves the recommendation service everything a user
// has done with the catalog.
func (s *Server) handleUserInteractions(w http.ResponseWriter, r *http.Request) {
	userID := idParam(r)
	if _, err := s.repo.Users.GetByID(r.Context(), userID); err != nil {
		s.respondServiceError(w, r, err, "Failed to load interactions")
		return
	}

	favorites, err := s.repo.Favorites.ListByUser(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to load interactions")
		return
	}
	ratings, err := s.repo.Ratings.ListByUser(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to load interactions")
		return
	}
	history, err := s.repo.History.ListByUser(r.Context(), userID, 0)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to load interactions")
		return
	}

	resp := interactionsResponse{
		UserID:    userID,
		Favorites: make([]string, 0, len(favorites)),
		Ratings:   make([]interactionRating, 0, len(ratings)),
		History:   make([]interactionHistory, 0, len(history)),
	}
	for _, f := range favorites {
		resp.Favorites = append(resp.Favorites, f.WineID)
	}
	for _, rt := range ratings {
		resp.Ratings = append(resp.Ratings, interactionRating{WineID: rt.WineID, Rating: rt.Value})
	}
	for _, h := range history {
		resp.History = append(resp.History, interactionHistory{WineID: h.WineID, AccessedAt: h.AccessedAt})
	}
	s.respondJSON(w, http.StatusOK, resp)
}
