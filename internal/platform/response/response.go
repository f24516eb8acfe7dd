// Package response renders the JSON envelope shared by every API endpoint.
package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/pkg/pagination"
)

const genericError = "An unexpected error occurred"

// Envelope is the body of every /api response.
type Envelope struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Accepted acknowledges work that was queued rather than done.
func Accepted(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusAccepted, Envelope{Success: true, Data: data})
}

func Paginated(c echo.Context, items interface{}, total int, p pagination.Params) error {
	return OK(c, pagination.NewPage(items, total, p))
}

func Fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, Envelope{Success: false, Error: msg})
}

type errorCapturer interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
}

// ErrorHandler maps returned errors onto the envelope. Anything it does not
// recognise is logged, reported and rendered as a generic 500.
func ErrorHandler(logger zerolog.Logger, reporter errorCapturer) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, env := classify(err)
		if status == http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
			if reporter != nil {
				reporter.CaptureError(c.Request().Context(), err, map[string]string{
					"request_id": rid,
					"path":       c.Path(),
				})
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, env)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func classify(err error) (int, Envelope) {
	if ve, ok := apperr.AsValidation(err); ok {
		return http.StatusBadRequest, Envelope{Error: ve.Message, Fields: ve.Fields}
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, Envelope{Error: "Not found"}
	case errors.Is(err, db.ErrMissingTenantScope):
		return http.StatusInternalServerError, Envelope{Error: genericError}
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, Envelope{Error: err.Error()}
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, Envelope{Error: err.Error()}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		if he.Code >= http.StatusInternalServerError {
			return he.Code, Envelope{Error: genericError}
		}
		return he.Code, Envelope{Error: msg}
	}
	return http.StatusInternalServerError, Envelope{Error: genericError}
}
