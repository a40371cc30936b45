package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

// classifyStatus maps an HTTP status returned by a provider onto the shared
// oracle error sentinels. Status 0 means the request never got a response.
func classifyStatus(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", coreerrors.ErrAuthentication, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", coreerrors.ErrRateLimited, err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", coreerrors.ErrMalformedResponse, err)
	default:
		return fmt.Errorf("%w: %w", coreerrors.ErrConnectivity, err)
	}
}

// classifyTransport handles errors that carry no HTTP status. Caller
// cancellation is passed through untouched.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	return fmt.Errorf("%w: %w", coreerrors.ErrConnectivity, err)
}
