package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"GiftSend/internal/orders"
	"GiftSend/internal/recipients"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 64 << 10

type GiftCardSummary struct {
	TotalGiftCards      int `json:"totalGiftCards"`
	TotalGiftCardAmount int `json:"totalGiftCardAmount"`
	PendingGiftCards    int `json:"pendingGiftCards"`
	ProcessingGiftCards int `json:"processingGiftCards"`
	DeliveredGiftCards  int `json:"deliveredGiftCards"`
	FailedGiftCards     int `json:"failedGiftCards"`
	DeliveredAmount     int `json:"deliveredAmount"`
}

type DashboardStats struct {
	recipients.UploadStats
	GiftCards GiftCardSummary `json:"giftCards"`
}

func giftCardSummary(st orders.Stats) GiftCardSummary {
	return GiftCardSummary{
		TotalGiftCards:      st.TotalGiftCards,
		TotalGiftCardAmount: st.TotalAmount,
		PendingGiftCards:    st.PendingCount,
		ProcessingGiftCards: st.ProcessingCount,
		DeliveredGiftCards:  st.DeliveredCount,
		FailedGiftCards:     st.FailedCount,
		DeliveredAmount:     st.DeliveredAmount,
	}
}

// handleDashboardStats handles GET /api/dashboard/stats
func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	uploads, err := s.recipients.Stats(r.Context(), user)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	gc, _, err := s.orders.Stats(r.Context(), user, 0)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}

	s.sendData(w, "", DashboardStats{UploadStats: uploads, GiftCards: giftCardSummary(gc)})
}

// handleUpload handles POST /api/dashboard/upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize+multipartOverhead)

	file, header, err := r.FormFile("excelFile")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.sendError(w, http.StatusBadRequest, s.tooLargeMessage())
		case errors.Is(err, http.ErrMissingFile):
			s.sendError(w, http.StatusBadRequest, "No file uploaded")
		default:
			s.sendError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		}
		return
	}
	defer file.Close()

	if header.Size > s.opts.MaxUploadSize {
		s.sendError(w, http.StatusBadRequest, s.tooLargeMessage())
		return
	}

	up, err := s.recipients.Upload(r.Context(), userID(r), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}

	s.sendData(w, fmt.Sprintf("Successfully processed %d email addresses from %s", up.ValidEmails, up.FileName), up)
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("File too large. Maximum size is %dMB.", s.opts.MaxUploadSize>>20)
}

// handleListBatches handles GET /api/dashboard/email-lists
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	list, err := s.recipients.List(r.Context(), userID(r), page, limit)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "", list)
}

// handleGetBatch handles GET /api/dashboard/email-lists/{id}
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.recipients.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "", b)
}

// handleDeleteBatch handles DELETE /api/dashboard/email-lists/{id}
func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.recipients.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "Email list deleted successfully", nil)
}

// handleListRecipients handles GET /api/dashboard/emails/{listId}
func (s *Server) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	rl, err := s.recipients.Recipients(r.Context(), userID(r), chi.URLParam(r, "listId"), page, limit)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	s.sendData(w, "", rl)
}
