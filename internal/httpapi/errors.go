package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"stockwatch/internal/fetcher"
	"stockwatch/internal/notifier"
	"stockwatch/internal/storage"
)

type jsonError struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSONError writes {"ok":false,"error":message}.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, jsonError{Error: message})
}

// writeStorageError maps invalid arguments to 400 and everything else to 500.
func writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrInvalidArgument) {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSONError(w, http.StatusInternalServerError, err.Error())
}

// writeFetchError reports an upstream failure. Rejections carry the
// upstream status and a snippet of its body.
func writeFetchError(w http.ResponseWriter, err error) {
	var rejected *fetcher.RejectedError
	switch {
	case errors.As(err, &rejected):
		WriteJSON(w, http.StatusBadGateway, jsonError{
			Error:   err.Error(),
			Status:  rejected.StatusCode,
			Snippet: rejected.Snippet,
		})
	case errors.Is(err, fetcher.ErrUpstreamUnreachable):
		WriteJSONError(w, http.StatusGatewayTimeout, err.Error())
	default:
		WriteJSONError(w, http.StatusBadGateway, err.Error())
	}
}

// writeDispatchError reports a failed push.
func writeDispatchError(w http.ResponseWriter, err error) {
	var delivery *notifier.DeliveryError
	if errors.As(err, &delivery) {
		WriteJSON(w, http.StatusBadGateway, jsonError{
			Error:  err.Error(),
			Status: delivery.StatusCode,
		})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		WriteJSONError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	WriteJSONError(w, http.StatusBadGateway, err.Error())
}
