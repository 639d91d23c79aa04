// internal/handlers/server.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"sphero-behavior/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// NewServer builds the echo instance with middleware and routes.
func NewServer(h *APIHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			utils.Logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}).Debug("HTTP request")
			return nil
		},
	}))

	h.Register(e)
	return e
}

// CustomHTTPErrorHandler is the central error handler for the Echo application.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		// If there's an underlying original error, log it for debugging purposes.
		if internalErr := appErr.Unwrap(); internalErr != nil {
			utils.Logger.WithFields(logrus.Fields{
				"status_code":    appErr.Code,
				"error_message":  appErr.Message,
				"internal_error": internalErr.Error(),
			}).Info("Error handled")
		}
		_ = c.JSON(appErr.Code, utils.ErrorResponse(appErr.Message))
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, utils.ErrorResponse(fmt.Sprint(httpErr.Message)))
		return
	}

	utils.Logger.WithFields(logrus.Fields{
		"error_type": fmt.Sprintf("%T", err),
	}).Errorf("Unhandled error occurred: %v", err)
	_ = c.JSON(http.StatusInternalServerError, utils.ErrorResponse("An unexpected internal error occurred."))
}
