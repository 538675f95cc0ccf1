package registry

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brane-project/brane/pkg/registry/assetstore"
)

// APIError is the registry HTTP surface's uniform error envelope: a
// machine-readable code, a human message, and the HTTP status to
// answer with.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

var (
	ErrAssetNotFound      = NewAPIError("ASSET_NOT_FOUND", "dataset or result not found", http.StatusNotFound)
	ErrPrincipalRequired  = NewAPIError("PRINCIPAL_REQUIRED", "a client certificate (or trusted principal header) is required", http.StatusUnauthorized)
	ErrInvalidRequestBody = NewAPIError("INVALID_REQUEST_BODY", "invalid download request body", http.StatusBadRequest)
	ErrCheckerUnavailable = NewAPIError("CHECKER_UNAVAILABLE", "policy checker unavailable", http.StatusBadGateway)
	ErrArchiveFailed      = NewAPIError("ARCHIVE_FAILED", "building the transfer archive failed", http.StatusInternalServerError)
)

// TranslateError maps an internal error to the APIError the registry
// responds with, via a chain of errors.Is checks.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, assetstore.ErrNotFound) {
		return ErrAssetNotFound
	}
	return NewAPIError("INTERNAL_ERROR", "an unexpected error occurred", http.StatusInternalServerError)
}

func respondAPIError(c *gin.Context, err error) {
	apiErr := TranslateError(err)
	c.JSON(apiErr.HTTPStatus, apiErr)
}
