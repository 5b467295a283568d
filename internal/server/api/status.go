package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/looplj/lifeline/internal/collections"
	"github.com/looplj/lifeline/internal/objects"
	"github.com/looplj/lifeline/internal/store"
)

// errorStatus maps collection and store errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		validationErr *objects.ValidationError
		queryErr      *store.QueryError
		subErr        *store.SubscriptionError
	)

	switch {
	case errors.Is(err, collections.ErrUnknownCollection), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr), errors.Is(err, store.ErrInvalidMutation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &queryErr):
		return http.StatusBadGateway
	case errors.As(err, &subErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
