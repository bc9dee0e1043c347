package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"GiftSend/internal/extractor"
	"GiftSend/internal/models"
	"GiftSend/internal/orders"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type HealthResponse struct {
	Message string `json:"message"`
	Uptime  string `json:"uptime"`
}

type ProviderConfig struct {
	APIURL      string `json:"apiUrl"`
	APIKey      string `json:"apiKey"`
	Environment string `json:"environment"`
	CampaignID  string `json:"campaignId"`
}

type ProviderConfigResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	Config          ProviderConfig  `json:"config"`
	EnvVariablesSet map[string]bool `json:"envVariablesSet"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Message: "Server is running!",
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleProviderConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.provider.Config()

	s.sendJSON(w, http.StatusOK, ProviderConfigResponse{
		Success: true,
		Message: "Giftogram configuration check",
		Config: ProviderConfig{
			APIURL:      cfg.BaseURL,
			APIKey:      s.provider.MaskedKey(),
			Environment: cfg.Environment,
			CampaignID:  cfg.CampaignID,
		},
		EnvVariablesSet: map[string]bool{
			"GIFTOGRAM_API_URL":     cfg.BaseURL != "",
			"GIFTOGRAM_API_KEY":     cfg.APIKey != "",
			"GIFTOGRAM_ENVIRONMENT": cfg.Environment != "",
			"GIFTOGRAM_CAMPAIGN_ID": cfg.CampaignID != "",
		},
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) sendData(w http.ResponseWriter, message string, data any) {
	s.sendJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, Response{Success: false, Message: message})
}

// sendFailure maps a service error to a status code. Unclassified errors
// are logged and hidden from the client.
func (s *Server) sendFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *models.ValidationError
		parse      *models.ParseError
		notFound   *models.NotFoundError
		provider   *models.ProviderError
	)

	switch {
	case errors.As(err, &validation):
		s.sendError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &parse):
		s.sendError(w, http.StatusBadRequest, "Failed to process Excel file: "+parse.Err.Error())
	case errors.Is(err, extractor.ErrNoEmails):
		s.sendError(w, http.StatusBadRequest, "No valid email addresses found in the uploaded file")
	case errors.As(err, &notFound):
		s.sendError(w, http.StatusNotFound, capitalize(notFound.Resource)+" not found")
	case errors.As(err, &provider):
		s.log.Warn("provider request failed",
			zap.String("path", r.URL.Path),
			zap.Int("provider_status", provider.StatusCode),
			zap.Error(err),
		)
		s.sendError(w, http.StatusBadGateway, provider.Error())
	case errors.Is(err, orders.ErrShuttingDown):
		s.sendError(w, http.StatusServiceUnavailable, "Service is shutting down")
	default:
		s.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal server error")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// pageParams reads page and limit. Missing or malformed values become 0
// and are defaulted by the services.
func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
