package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/story-api/internal/api/shared"
	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/llm"
	"github.com/phrazzld/story-api/internal/store"
	"github.com/phrazzld/story-api/internal/task"
)

// errInvalidPath marks a malformed path or query parameter.
var errInvalidPath = errors.New("invalid request parameter")

// MapErrorToStatusCode maps internal errors to HTTP status codes so internal
// error types never reach clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, store.ErrStoryNotFound):
		return http.StatusNotFound

	case errors.As(err, &validationErrs),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, llm.ErrInvalidParameter),
		errors.Is(err, errInvalidPath):
		return http.StatusUnprocessableEntity

	case errors.Is(err, task.ErrTimeout):
		return http.StatusRequestTimeout

	// Dispatch failures and failed tasks are server errors.
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var (
		validationErrs validator.ValidationErrors
		fieldErr       *domain.ValidationError
		remote         *task.RemoteError
		dispatch       *task.DispatchError
	)

	switch {
	case errors.Is(err, store.ErrStoryNotFound):
		return "Story not found"

	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)

	case errors.As(err, &fieldErr):
		return fmt.Sprintf("Invalid %s: %s", fieldErr.Field, fieldErr.Message)

	case errors.Is(err, errInvalidPath), errors.Is(err, llm.ErrInvalidParameter):
		// Both name only the parameter and its allowed values.
		return err.Error()

	case errors.Is(err, task.ErrTimeout):
		return "Task result not ready within timeout"

	case errors.Is(err, task.ErrRevoked):
		return "Task was cancelled"

	case errors.As(err, &dispatch):
		return "Failed to submit task"

	case errors.As(err, &remote):
		// Workers redact messages before recording them.
		if remote.Message == "" {
			return "Task failed: " + remote.Type
		}
		return "Task failed: " + remote.Message

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError reports the first failed field by its JSON name.
func SanitizeValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation error"
	}

	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe)))
	}
	return strings.Join(msgs, "; ")
}

func getValidationTagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// full error. A non-empty fallback replaces the generic 500 message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" && message == "An unexpected error occurred" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
