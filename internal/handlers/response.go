package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"diglet/internal/models"
	"diglet/internal/services"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(data)
}

// writeError logs err and answers with the status its kind maps to.
func writeError(w http.ResponseWriter, logr *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logr.Error(msg, zap.Error(err))
	} else {
		logr.Warn(msg, zap.Error(err))
	}

	body := map[string]string{"error": err.Error()}
	var op *models.OpError
	if errors.As(err, &op) {
		body["kind"] = string(op.Kind)
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	var op *models.OpError
	if errors.As(err, &op) {
		switch op.Kind {
		case models.ImportCredentialsError:
			return http.StatusBadRequest
		case models.AOIReadError:
			return http.StatusUnprocessableEntity
		case models.ConnectionError, models.CatalogQueryError:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}

	switch {
	case errors.Is(err, services.ErrNoAOI), errors.Is(err, services.ErrNoScan):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnknownTable):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnknownTables):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, services.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
