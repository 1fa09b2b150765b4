// Package app implements the HTTP handlers and domain logic for the
// interview-assistant backend.
package app

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AppError is the one typed error every domain failure is raised as. It
// carries the HTTP status and a machine-readable code alongside the
// human-readable message returned in the JSON body.
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *AppError) Error() string { return e.Message }

func errBadRequest(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: "bad_request", Message: msg}
}

func errUnauthorized(msg string) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: msg}
}

func errForbidden(msg string) *AppError {
	return &AppError{Status: http.StatusForbidden, Code: "forbidden", Message: msg}
}

func errNotFound(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: "not_found", Message: msg}
}

func errConflict(msg string) *AppError {
	return &AppError{Status: http.StatusConflict, Code: "conflict", Message: msg}
}

func errTooManyRequests(msg string) *AppError {
	return &AppError{Status: http.StatusTooManyRequests, Code: "limit_exceeded", Message: msg}
}

func errInternal(msg string) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Code: "internal", Message: msg}
}

// respondError writes the JSON error body for any error. Unexpected errors
// are logged and collapsed to a generic 500 in production.
func respondError(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}

	log.Printf("unexpected error path=%s err=%v", c.Request.URL.Path, err)
	msg := "internal server error"
	if !production {
		msg = err.Error()
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "code": "internal"})
}
