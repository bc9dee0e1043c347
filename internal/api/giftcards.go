package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"GiftSend/internal/models"
	"GiftSend/internal/orders"
)

const recentGiftCards = 5

type GiftCardStats struct {
	Stats       orders.Stats         `json:"stats"`
	RecentCards []models.OrderRecord `json:"recentCards"`
}

// handleCampaigns handles GET /api/giftcards/campaigns
func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.orders.Campaigns(r.Context())
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "", campaigns)
}

// handleSend handles POST /api/giftcards/send
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req orders.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.orders.Send(r.Context(), userID(r), req)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}

	s.sendData(w, fmt.Sprintf("Successfully processed gift cards for %d recipients", res.Successful), res)
}

// handleHistory handles GET /api/giftcards/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	h, err := s.orders.History(r.Context(), userID(r), page, limit)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "", h)
}

// handleGiftCardStats handles GET /api/giftcards/stats
func (s *Server) handleGiftCardStats(w http.ResponseWriter, r *http.Request) {
	st, recent, err := s.orders.Stats(r.Context(), userID(r), recentGiftCards)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "", GiftCardStats{Stats: st, RecentCards: recent})
}

// handleRefreshStatus handles GET /api/giftcards/{id}/status
func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orders.RefreshStatus(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "", rec)
}

// handleCancel handles DELETE /api/giftcards/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orders.Cancel(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "Gift card cancelled successfully", rec)
}
