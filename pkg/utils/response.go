package utils

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"hr-portal/pkg/apperrors"
)

type HttpResponse struct {
	Status  bool        `json:"status"`
	Body    interface{} `json:"body,omitempty"`
	Message string      `json:"message"`
}

func SuccessResponse(ctx echo.Context, body interface{}, message string, code int) error {
	return ctx.JSON(code, &HttpResponse{
		Status:  true,
		Body:    body,
		Message: message,
	})
}

func ErrorResponse(ctx echo.Context, err error) error {
	code := http.StatusInternalServerError

	switch {
	case apperrors.IsAuthentication(err):
		code = http.StatusUnauthorized
	case apperrors.IsAuthorization(err):
		code = http.StatusForbidden
	case apperrors.IsValidation(err):
		code = http.StatusUnprocessableEntity
	}

	return ctx.JSON(code, &HttpResponse{
		Status:  false,
		Body:    struct{}{},
		Message: err.Error(),
	})
}
