// Package routes holds request helpers shared by the resource handlers.
package routes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// Bind decodes the request into req and validates its struct tags.
func Bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// RequiredQuery returns a non-empty query parameter or a 400.
func RequiredQuery(c echo.Context, name string) (string, error) {
	value := strings.TrimSpace(c.QueryParam(name))
	if value == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	return value, nil
}

// IntQuery parses an optional integer query parameter, returning fallback when absent.
func IntQuery(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return v, nil
}
