package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"provisionstore/backend/internal/service"
	"provisionstore/backend/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// requestError is a malformed or invalid request body.
type requestError struct {
	msg     string
	details map[string]string
	cause   error
}

func (e *requestError) Error() string {
	return e.msg
}

func (e *requestError) Unwrap() []error {
	if e.cause != nil {
		return []error{store.ErrValidation, e.cause}
	}
	return []error{store.ErrValidation}
}

func decodeJSON(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return &requestError{msg: "invalid request body: " + err.Error(), cause: err}
	}
	if err := validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Field()] = validationMessage(fe)
			}
			return &requestError{msg: "validation failed", details: details}
		}
		return &requestError{msg: "validation failed", cause: err}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	}
	return "is invalid"
}

// statusFor maps domain errors onto HTTP statuses and stable error codes.
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	var stockErr *store.StockError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	case errors.As(err, &stockErr):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, service.ErrInvalidPin):
		return http.StatusUnauthorized, "INVALID_PIN"
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, store.ErrAlreadyReversed):
		return http.StatusConflict, "ALREADY_REVERSED"
	case errors.Is(err, service.ErrUndoWindowExpired):
		return http.StatusConflict, "UNDO_WINDOW_EXPIRED"
	case errors.Is(err, store.ErrExcessReturn):
		return http.StatusConflict, "EXCESS_RETURN"
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE"
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorBody{Error: err.Error(), Code: code}

	// 5xx messages can carry driver or filesystem details, so they stay in the log.
	if status >= http.StatusInternalServerError {
		a.log.Error(r.Context(), "request failed", err)
		body.Error = "internal server error"
	}

	var reqErr *requestError
	var stockErr *store.StockError
	switch {
	case errors.As(err, &reqErr) && len(reqErr.details) > 0:
		body.Details = reqErr.details
	case errors.As(err, &stockErr):
		body.Details = map[string]any{
			"product_id":   stockErr.ProductID,
			"product_name": stockErr.ProductName,
			"requested":    stockErr.Requested,
			"available":    stockErr.Available,
		}
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFile(w http.ResponseWriter, contentType string, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}
