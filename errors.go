package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ValidationError is bad user input. Nothing was mutated.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// StorageParseError means a persisted blob or an import document could not be decoded.
type StorageParseError struct {
	Source string
	Err    error
}

func (e *StorageParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *StorageParseError) Unwrap() error { return e.Err }

// GatewayError wraps a failed AI call: transport failure, non-2xx status, or
// an unusable response body.
type GatewayError struct {
	Op     string
	Status int // 0 when no HTTP response was received
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PersistError is returned by store mutations whose full-state save failed.
// The in-memory mutation has already been applied and is kept.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("state changed but could not be saved: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

var (
	errAIBusy        = errors.New("another AI request is in progress")
	errAIRateLimited = errors.New("too many AI requests, try again shortly")
)

// respondError maps the error taxonomy onto HTTP statuses and writes the
// usual {"error": "..."} body.
func respondError(c *gin.Context, err error) {
	var (
		vErr *ValidationError
		pErr *StorageParseError
		gErr *GatewayError
		sErr *PersistError
	)
	switch {
	case errors.As(err, &vErr):
		apiError(c, http.StatusBadRequest, vErr.Message)
	case errors.As(err, &pErr):
		apiError(c, http.StatusBadRequest, pErr.Error())
	case errors.Is(err, errAIBusy):
		apiError(c, http.StatusConflict, err.Error())
	case errors.Is(err, errAIRateLimited):
		apiError(c, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &gErr):
		apiError(c, http.StatusBadGateway, gErr.Error())
	case errors.As(err, &sErr):
		apiError(c, http.StatusInternalServerError, sErr.Error())
	default:
		logrus.Errorf("[api] unexpected error on %s: %v", c.FullPath(), err)
		apiError(c, http.StatusInternalServerError, "internal error")
	}
}
