package api

import (
	"errors"
	"net/http"

	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/albarqi19/alraed-sub006/pkg/store"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// newHTTPErrorHandler maps domain errors onto status codes. Anything it does
// not recognise is a server error and gets logged.
func newHTTPErrorHandler(l logger.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message interface{}
			httpErr *echo.HTTPError
			fldErrs validator.ValidationErrors
		)

		switch {
		case errors.As(err, &httpErr):
			if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
				httpErr = herr
			}
			code = httpErr.Code
			message = httpErr.Message
		case errors.As(err, &fldErrs):
			fields := make(map[string]string, len(fldErrs))
			for _, fe := range fldErrs {
				fields[fe.Field()] = fe.Tag()
			}
			code = http.StatusBadRequest
			message = fields
		case errors.Is(err, models.ErrInvalidState):
			code = http.StatusBadRequest
			message = err.Error()
		case errors.Is(err, store.ErrScheduleNotFound), errors.Is(err, store.ErrEventNotFound):
			code = http.StatusNotFound
			message = err.Error()
		default:
			code = http.StatusInternalServerError
			message = http.StatusText(code)
			l.Error("[API] %s %s: %v", ctx.Request().Method, ctx.Path(), err)
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}
		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, message)
		}
		if err != nil {
			l.Error("[API] write error response: %v", err)
		}
	}
}
