package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrServiceUnavailable is returned while a connector's circuit breaker is
// open.
var ErrServiceUnavailable = errors.New("service unavailable")

// ServiceError is a non-2xx answer from a service.
type ServiceError struct {
	Service    string
	Operation  string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Service, e.Operation, e.StatusCode, msg)
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, operation string, statusCode int, message string) *ServiceError {
	return &ServiceError{
		Service:    service,
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// StatusCode returns the HTTP status of a ServiceError in err's chain, or 0.
func StatusCode(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// parseServiceError reads the error shapes services answer with:
//
//	{"code": 400, "error": "Model not found"}
//	{"error": {"code": "bad_request", "message": "..."}}
//	{"code_description": "Bad Request", "description": "..."}
func parseServiceError(service, operation string, status int, body []byte) *ServiceError {
	e := NewServiceError(service, operation, status, "")

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		e.Message = strings.TrimSpace(string(body))
		return e
	}

	switch v := doc["error"].(type) {
	case string:
		e.Message = v
	case map[string]any:
		e.Message = stringField(v, "message")
		e.Code = stringField(v, "code")
	}
	if e.Message == "" {
		e.Message = firstString(doc, "message", "description", "error_message", "errorMessage")
	}
	if e.Code == "" {
		e.Code = firstString(doc, "code_description", "error_code", "errorCode", "code")
	}
	return e
}

func firstString(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(doc, k); s != "" {
			return s
		}
	}
	return ""
}

func stringField(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
