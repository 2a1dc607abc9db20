package handler

import (
	"errors"
	"net/http"

	"sitestock/internal/service"
)

// statusFromErr maps service sentinel errors onto HTTP status codes.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
