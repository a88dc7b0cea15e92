package routing

import (
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/judge"
	"judge-engine/internal/judgeerr"
	"judge-engine/internal/taskqueue"
)

// HandleExecute judges the request synchronously. An optional priority
// query parameter orders it within the task queue.
func (h Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var request judge.Request

	if !decodeRequest(w, r, &request, h.Validator, h.Translator) {
		return
	}

	priority := 0

	if value := r.URL.Query().Get("priority"); value != "" {
		parsed, err := strconv.Atoi(value)

		if err != nil {
			handleErrorResponse(w, http.StatusBadRequest, "priority must be an integer")
			return
		}

		priority = parsed
	}

	result, err := h.Judge.Execute(r.Context(), request, priority)

	if err != nil {
		handleExecuteError(w, err)
		return
	}

	handleJSONResponse(w, result, http.StatusOK)
}

func handleExecuteError(w http.ResponseWriter, err error) {
	var validationErr *judgeerr.ValidationError
	var typeErr *judgeerr.UnsupportedTypeError

	switch {
	case errors.As(err, &validationErr):
		handleJSONResponse(w, ErrorResponse{
			Errors:   []string{validationErr.Message},
			Category: validationErr.Category,
		}, http.StatusBadRequest)

	case errors.As(err, &typeErr):
		handleJSONResponse(w, ErrorResponse{
			Errors:   []string{typeErr.Error()},
			Category: judgeerr.CategoryUnsupportedType,
		}, http.StatusBadRequest)

	case errors.Is(err, taskqueue.ErrQueueFull), errors.Is(err, taskqueue.ErrShuttingDown),
		errors.Is(err, taskqueue.ErrTaskExpired), errors.Is(err, taskqueue.ErrShutdown):
		handleErrorResponse(w, http.StatusServiceUnavailable, "the judge is busy, try again later")

	case judgeerr.IsInfrastructure(err):
		log.Error().Err(err).Msg("judging failed on infrastructure")
		handleErrorResponse(w, http.StatusInternalServerError, "failed to provision the execution environment")

	default:
		log.Error().Err(err).Msg("judging failed")
		handleErrorResponse(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
