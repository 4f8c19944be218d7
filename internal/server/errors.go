package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/harrison/filestage/internal/models"
)

const (
	msgNotFound = "File not found"
	msgInternal = "internal error"
)

type messageBody struct {
	Message string `json:"message"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}

	switch models.KindOf(err) {
	case models.ErrInvalidInput:
		return http.StatusBadRequest
	case models.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing message. Process and storage
// details stay in the logs.
func messageFor(err error, status int) string {
	switch status {
	case http.StatusNotFound:
		return msgNotFound
	case http.StatusInternalServerError:
		return msgInternal
	case http.StatusRequestEntityTooLarge:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit)
		}
	}

	var opErr *models.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return err.Error()
}

// badParam builds an InvalidInput error for a query or form parameter.
func badParam(op, fileName, format string, args ...interface{}) error {
	return models.NewOpError(op, fileName, models.ErrInvalidInput, fmt.Errorf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError logs and renders err, and notes it on the request's audit record.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	rec := recordFrom(r.Context())
	rec.err = err.Error()

	if status >= http.StatusInternalServerError {
		s.log.LogError(fmt.Sprintf("%s %s [%s]: %v", r.Method, r.URL.Path, rec.requestID, err))
	} else {
		s.log.LogDebug(fmt.Sprintf("%s %s [%s]: %v", r.Method, r.URL.Path, rec.requestID, err))
	}

	writeJSON(w, status, messageBody{Message: messageFor(err, status)})
}
