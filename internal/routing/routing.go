// Package routing is the HTTP surface of the judge: synchronous judging,
// asynchronous submissions and the supported languages.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/judge"
	"judge-engine/internal/notify"
	"judge-engine/internal/repository"
	"judge-engine/internal/submission"
	"judge-engine/internal/testcase"
	"judge-engine/internal/validation"
)

const maxRequestBodyBytes = 1_048576 * 2

// Judge is the synchronous judging service.
type Judge interface {
	Execute(ctx context.Context, request judge.Request, priority int) (*testcase.RunResult, error)
}

// Submissions creates asynchronous submissions.
type Submissions interface {
	Create(ctx context.Context, problemID, code, language string) (*submission.CreateResponse, error)
}

type Handlers struct {
	Judge       Judge
	Submissions Submissions
	Repo        repository.Repository
	Broadcaster *notify.Broadcaster
	Languages   []string

	Translator ut.Translator
	Validator  *validator.Validate
}

// NewRouter registers every route, each wrapped with request logging.
func NewRouter(h Handlers) http.Handler {
	r := mux.NewRouter()

	logged := func(handler http.HandlerFunc) http.Handler {
		return handlers.LoggingHandler(os.Stdout, handler)
	}

	r.Handle("/execute", logged(h.HandleExecute)).Methods(http.MethodPost)
	r.Handle("/submissions", logged(h.HandleCreateSubmission)).Methods(http.MethodPost)
	r.Handle("/submissions/{id}", logged(h.HandleGetSubmission)).Methods(http.MethodGet)
	r.Handle("/submissions/{id}/wait", logged(h.HandleWaitSubmission)).Methods(http.MethodGet)
	r.Handle("/languages", logged(h.HandleGetLanguages)).Methods(http.MethodGet)

	return handlers.CompressHandler(r)
}

func handleJSONResponse(w http.ResponseWriter, body any, code int) {
	response, _ := json.Marshal(body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func handleErrorResponse(w http.ResponseWriter, code int, errs ...string) {
	handleJSONResponse(w, ErrorResponse{Errors: errs}, code)
}

// decodeRequest reads a size capped JSON body into the target and runs
// struct validation. It writes the failure response and returns false when
// the request cannot be used.
func decodeRequest(w http.ResponseWriter, r *http.Request, target any, validate *validator.Validate,
	translator ut.Translator) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(target); err != nil {
		handleDecodeError(w, err)
		return false
	}

	if err := validate.Struct(target); err != nil {
		errs := validation.TranslateError(err, translator)

		if len(errs) == 0 {
			errs = []string{err.Error()}
		}

		handleErrorResponse(w, http.StatusBadRequest, errs...)
		return false
	}

	return true
}

func handleDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxError):
		msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
		handleErrorResponse(w, http.StatusBadRequest, msg)

	case errors.Is(err, io.ErrUnexpectedEOF):
		handleErrorResponse(w, http.StatusBadRequest, "Request body contains badly-formed JSON")

	case errors.As(err, &unmarshalTypeError):
		msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)",
			unmarshalTypeError.Field, unmarshalTypeError.Offset)
		handleErrorResponse(w, http.StatusBadRequest, msg)

	case strings.HasPrefix(err.Error(), "json: unknown field "):
		fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
		handleErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Request body contains unknown field %s", fieldName))

	case errors.Is(err, io.EOF):
		handleErrorResponse(w, http.StatusBadRequest, "Request body must not be empty")

	case errors.As(err, &maxBytesError):
		handleErrorResponse(w, http.StatusRequestEntityTooLarge, "Request body must not be larger than 2MB")

	default:
		log.Error().Err(err).Msg("failed to decode request")
		handleErrorResponse(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
