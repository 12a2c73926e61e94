package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/user-insights/internal/apperror"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    any             `json:"data,omitempty"`
	Errors  apperror.Fields `json:"errors,omitempty"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// ErrorHandler renders errors returned by handlers and middleware as the
// failure envelope. Internal errors are logged with their cause and
// answered with a generic message.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			ae *apperror.Error
			he *echo.HTTPError
		)
		switch {
		case errors.As(err, &ae):
		case errors.As(err, &he):
			ae = fromHTTPError(he)
		default:
			ae = apperror.Internal(err)
		}

		status := ae.HTTPStatus()
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("code", string(ae.Code)),
				zap.Error(err),
			)
		}

		body := envelope{
			Message: ae.Message,
			Code:    strings.ToLower(string(ae.Code)),
			Errors:  ae.Fields,
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.Warn("error response not written", zap.Error(werr))
		}
	}
}

// fromHTTPError maps echo's own errors (unknown route, bad method, body
// binding) onto the taxonomy.
func fromHTTPError(he *echo.HTTPError) *apperror.Error {
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	var code apperror.Code
	switch he.Code {
	case http.StatusNotFound:
		code = apperror.CodeNotFound
	case http.StatusUnauthorized:
		code = apperror.CodeUnauthenticated
	case http.StatusForbidden:
		code = apperror.CodeForbidden
	case http.StatusTooManyRequests:
		code = apperror.CodeTooManyRequests
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		code = apperror.CodeBadRequest
	default:
		if he.Code < http.StatusInternalServerError {
			code = apperror.CodeBadRequest
		} else {
			return apperror.Internal(he)
		}
	}
	return apperror.New(code, strings.ToLower(msg))
}

// bind decodes the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "invalid request body")
	}
	return nil
}
