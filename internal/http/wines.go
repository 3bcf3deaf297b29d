package httpserver

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/choosewine/choosewine-api/internal/auth"
	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/repository"
)

// wineRequest deliberately has no aggregate fields: with unknown fields
// rejected, clients cannot write ratingCount or averageRating.
type wineRequest struct {
	Name    string   `json:"name"`
	Thumb   *string  `json:"thumb"`
	Country *string  `json:"country"`
	Region  *string  `json:"region"`
	Winery  *string  `json:"winery"`
	Type    *string  `json:"type"`
	Price   *float64 `json:"price"`
}

type wineListResponse struct {
	Items      []wineResponse `json:"items"`
	NextCursor *string        `json:"nextCursor,omitempty"`
}

type wineResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Thumb         *string   `json:"thumb,omitempty"`
	Country       *string   `json:"country,omitempty"`
	Region        *string   `json:"region,omitempty"`
	Winery        *string   `json:"winery,omitempty"`
	Type          *string   `json:"type,omitempty"`
	Price         float64   `json:"price"`
	RatingCount   int64     `json:"ratingCount"`
	AverageRating float64   `json:"averageRating"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (s *Server) handleListWines(w http.ResponseWriter, r *http.Request) {
	filters, err := buildWineFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.repo.Wines.List(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list wines")
		return
	}

	s.respondJSON(w, http.StatusOK, wineListResponse{
		Items:      toWineResponses(result.Items),
		NextCursor: result.NextCursor,
	})
}

func buildWineFilters(query url.Values) (repository.WineListFilters, error) {
	var filters repository.WineListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	if val := strings.TrimSpace(query.Get("country")); val != "" {
		filters.Country = &val
	}
	if val := strings.TrimSpace(query.Get("region")); val != "" {
		filters.Region = &val
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleGetWine(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	wine, err := s.repo.Wines.GetByID(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch wine")
		return
	}

	if identity, ok := auth.FromContext(r.Context()); ok && identity.UserID != "" {
		if _, err := s.repo.History.Record(r.Context(), identity.UserID, wine.ID); err != nil {
			s.logger.Warn("record history failed",
				zap.String("user_id", identity.UserID),
				zap.String("wine_id", wine.ID),
				zap.Error(err),
			)
		}
	}

	s.respondJSON(w, http.StatusOK, toWineResponse(wine))
}

func (s *Server) handleCreateWine(w http.ResponseWriter, r *http.Request) {
	var req wineRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to create wine")
		return
	}

	wine, err := s.repo.Wines.Create(r.Context(), params)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to create wine")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/wines/%s", url.PathEscape(wine.ID)))
	s.respondJSON(w, http.StatusCreated, toWineResponse(wine))
}

func (s *Server) handleUpdateWine(w http.ResponseWriter, r *http.Request) {
	var req wineRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to update wine")
		return
	}

	wine, err := s.repo.Wines.Update(r.Context(), idParam(r), params)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to update wine")
		return
	}
	s.respondJSON(w, http.StatusOK, toWineResponse(wine))
}

func (s *Server) handleDeleteWine(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Wines.Delete(r.Context(), idParam(r)); err != nil {
		s.respondServiceError(w, r, err, "Failed to delete wine")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req wineRequest) params() (repository.WineParams, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return repository.WineParams{}, domain.NewValidationError("name", "is required")
	}
	var price float64
	if req.Price != nil {
		price = *req.Price
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return repository.WineParams{}, domain.NewValidationError("price", "must be a non-negative number")
	}
	return repository.WineParams{
		Name:    name,
		Thumb:   normalizeStringPtr(req.Thumb),
		Country: normalizeStringPtr(req.Country),
		Region:  normalizeStringPtr(req.Region),
		Winery:  normalizeStringPtr(req.Winery),
		Type:    normalizeStringPtr(req.Type),
		Price:   price,
	}, nil
}

func toWineResponse(wine domain.Wine) wineResponse {
	return wineResponse{
		ID:            wine.ID,
		Name:          wine.Name,
		Thumb:         wine.Thumb,
		Country:       wine.Country,
		Region:        wine.Region,
		Winery:        wine.Winery,
		Type:          wine.Type,
		Price:         wine.Price,
		RatingCount:   wine.RatingCount,
		AverageRating: wine.AverageRating,
		CreatedAt:     wine.CreatedAt,
		UpdatedAt:     wine.UpdatedAt,
	}
}

func toWineResponses(wines []domain.Wine) []wineResponse {
	items := make([]wineResponse, 0, len(wines))
	for _, wine := range wines {
		items = append(items, toWineResponse(wine))
	}
	return items
}
