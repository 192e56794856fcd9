package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stockwatch/internal/model"
	"stockwatch/internal/notifier"
)

const maxBodyBytes = 64 << 10

type subscriptionRequest struct {
	Token string `json:"token"`
	Item  string `json:"item"`
}

type notifyTestRequest struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type itemsResponse struct {
	OK    bool     `json:"ok"`
	Items []string `json:"items"`
}

type unsubscribeResponse struct {
	OK        bool `json:"ok"`
	Remaining int  `json:"remaining"`
}

type recordResponse struct {
	OK            bool      `json:"ok"`
	TCIN          string    `json:"tcin"`
	StoreID       string    `json:"storeId"`
	StoreName     string    `json:"storeName"`
	Available     bool      `json:"available"`
	Qty           *int      `json:"qty"`
	InStoreStatus string    `json:"inStoreStatus"`
	Updated       string    `json:"updated,omitempty"`
	ObservedAt    time.Time `json:"observedAt"`
}

type sweepResponse struct {
	ID         string    `json:"id"`
	Started    time.Time `json:"started"`
	Items      int       `json:"items"`
	Failed     int       `json:"failed"`
	DurationMS int64     `json:"durationMs"`
}

type healthResponse struct {
	Status    bool           `json:"status"`
	TS        int64          `json:"ts"`
	LastSweep *sweepResponse `json:"lastSweep,omitempty"`
}

func newRecordResponse(rec model.AvailabilityRecord) recordResponse {
	return recordResponse{
		OK:            true,
		TCIN:          rec.ItemID,
		StoreID:       rec.StoreID,
		StoreName:     rec.StoreName,
		Available:     rec.Available,
		Qty:           rec.Quantity,
		InStoreStatus: rec.StatusLabel,
		Updated:       rec.UpstreamUpdated,
		ObservedAt:    rec.ObservedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "expected application/json")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: true, TS: s.now().UnixMilli()}
	if s.deps.Sweeps != nil {
		if rep, ok := s.deps.Sweeps.LastSweep(); ok {
			resp.LastSweep = &sweepResponse{
				ID:         rep.ID,
				Started:    rep.Started,
				Items:      rep.Items,
				Failed:     rep.Failed,
				DurationMS: rep.Duration.Milliseconds(),
			}
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Subscriptions.Subscribe(r.Context(), req.Token, req.Item); err != nil {
		writeStorageError(w, err)
		return
	}
	items, err := s.deps.Subscriptions.ListItems(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	s.log.Info("subscribed", "destination", req.Token, "item_id", req.Item,
		"request_id", RequestIDFromContext(r.Context()))
	WriteJSON(w, http.StatusOK, itemsResponse{OK: true, Items: nonNil(items)})
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	remaining, err := s.deps.Subscriptions.Unsubscribe(r.Context(), req.Token, req.Item)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	s.log.Info("unsubscribed", "destination", req.Token, "item_id", req.Item, "remaining", remaining,
		"request_id", RequestIDFromContext(r.Context()))
	WriteJSON(w, http.StatusOK, unsubscribeResponse{OK: true, Remaining: remaining})
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	items, err := s.deps.Subscriptions.ListItems(r.Context(), token)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, itemsResponse{OK: true, Items: nonNil(items)})
}

func (s *Server) notifyTest(w http.ResponseWriter, r *http.Request) {
	var req notifyTestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		WriteJSONError(w, http.StatusBadRequest, "token is required")
		return
	}
	if req.Title == "" {
		req.Title = "Test notification"
	}
	if req.Body == "" {
		req.Body = "Push delivery is working."
	}

	msg := notifier.Message{Title: req.Title, Body: req.Body}
	if err := s.deps.Sender.Send(r.Context(), req.Token, msg); err != nil {
		s.log.Warn("notify test", "destination", req.Token, "error", err,
			"request_id", RequestIDFromContext(r.Context()))
		writeDispatchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item")
	rec, err := s.deps.Checker.Fetch(r.Context(), itemID)
	if err != nil {
		s.log.Warn("item lookup", "item_id", itemID, "error", err,
			"request_id", RequestIDFromContext(r.Context()))
		writeFetchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newRecordResponse(rec))
}

func (s *Server) getItemStatus(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item")
	if s.deps.Status == nil {
		WriteJSONError(w, http.StatusNotFound, "no observation for item "+itemID)
		return
	}
	rec, ok := s.deps.Status.Last(itemID)
	if !ok {
		WriteJSONError(w, http.StatusNotFound, "no observation for item "+itemID)
		return
	}
	WriteJSON(w, http.StatusOK, newRecordResponse(rec))
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
