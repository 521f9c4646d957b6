package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/ayo6706/campus-courier/internal/api/middleware"
	"github.com/ayo6706/campus-courier/internal/api/problem"
	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

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

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// decodeJSONBody decodes a JSON body into dest and runs its validate tags.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dest any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", models.ErrValidation)
		}
		return fmt.Errorf("%w: invalid request body: %v", models.ErrValidation, err)
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fe.Field()+" "+validationMessage(fe))
	}
	return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(parts, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "number":
		return "must contain only digits"
	case "numeric", "len":
		return "is invalid"
	}
	return "is invalid"
}

func requestActor(r *http.Request) (uuid.UUID, string, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, "", errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, "", errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()), nil
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+label+"-id", "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit and offset; the service clamps them.
func pagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	limit, offset := 0, 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a positive integer")
			return 0, 0, false
		}
		limit = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}

func isPrivileged(role string) bool {
	return role == domain.RoleAdmin || role == domain.RoleService
}

// respondServiceError maps the error taxonomy onto problem responses. Anything
// unrecognised is logged and reported as a 500 with a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, problemType := http.StatusInternalServerError, op+"/failed"
	switch {
	case errors.Is(err, models.ErrNotFound):
		status, problemType = http.StatusNotFound, "not-found"
	case errors.Is(err, models.ErrForbidden):
		status, problemType = http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrInvalidTransition):
		status, problemType = http.StatusConflict, "invalid-transition"
	case errors.Is(err, models.ErrAlreadyClaimed):
		status, problemType = http.StatusConflict, "already-claimed"
	case errors.Is(err, models.ErrCapacityExceeded):
		status, problemType = http.StatusConflict, "capacity-exceeded"
	case errors.Is(err, models.ErrInsufficientFunds):
		status, problemType = http.StatusUnprocessableEntity, "insufficient-funds"
	case errors.Is(err, models.ErrBankNotVerified):
		status, problemType = http.StatusUnprocessableEntity, "bank-not-verified"
	case errors.Is(err, models.ErrInvalidAmount):
		status, problemType = http.StatusBadRequest, "invalid-amount"
	case errors.Is(err, models.ErrValidation):
		status, problemType = http.StatusBadRequest, "validation"
	case errors.Is(err, models.ErrGateway):
		status, problemType = http.StatusBadGateway, "gateway"
	default:
		if dbStatus, dbType, message, ok := mapDBError(err); ok {
			RespondError(w, r, dbStatus, dbType, message)
			return
		}
		zap.L().Error(op+" failed", zap.Error(err), zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
		RespondError(w, r, status, problemType, "internal error")
		return
	}
	RespondError(w, r, status, problemType, err.Error())
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
