package routing

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/judge"
	"judge-engine/internal/judgeerr"
	"judge-engine/internal/repository"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 2 * time.Minute
)

func (h Handlers) HandleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var request CreateSubmissionRequest

	if !decodeRequest(w, r, &request, h.Validator, h.Translator) {
		return
	}

	response, err := h.Submissions.Create(r.Context(), request.ProblemID, request.Code, request.Language)

	var validationErr *judgeerr.ValidationError

	switch {
	case err == nil:
		handleJSONResponse(w, response, http.StatusAccepted)

	case errors.As(err, &validationErr):
		handleJSONResponse(w, ErrorResponse{
			Errors:   []string{validationErr.Message},
			Category: validationErr.Category,
		}, http.StatusBadRequest)

	case errors.Is(err, repository.ErrNotFound):
		handleErrorResponse(w, http.StatusNotFound, "the problem does not exist by the provided id.")

	default:
		log.Error().Err(err).Msg("failed to create submission")
		handleErrorResponse(w, http.StatusInternalServerError, "failed to create submission")
	}
}

func (h Handlers) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	submission, ok := h.loadSubmission(w, r)

	if !ok {
		return
	}

	handleJSONResponse(w, submission, http.StatusOK)
}

// HandleWaitSubmission long polls until the submission is terminal or the
// timeout query parameter (a duration, 30s by default) passes. The current
// record is returned either way.
func (h Handlers) HandleWaitSubmission(w http.ResponseWriter, r *http.Request) {
	timeout := defaultWaitTimeout

	if value := r.URL.Query().Get("timeout"); value != "" {
		parsed, err := time.ParseDuration(value)

		if err != nil || parsed <= 0 {
			handleErrorResponse(w, http.StatusBadRequest, "timeout must be a positive duration")
			return
		}

		timeout = min(parsed, maxWaitTimeout)
	}

	// subscribe before reading so a completion in between is not missed
	completed, cancel := h.Broadcaster.Subscribe(mux.Vars(r)["id"])
	defer cancel()

	submission, ok := h.loadSubmission(w, r)

	if !ok {
		return
	}

	if submission.Status.Terminal() {
		handleJSONResponse(w, submission, http.StatusOK)
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-completed:
		submission, ok = h.loadSubmission(w, r)

		if !ok {
			return
		}
	case <-timer.C:
	case <-r.Context().Done():
		return
	}

	handleJSONResponse(w, submission, http.StatusOK)
}

func (h Handlers) loadSubmission(w http.ResponseWriter, r *http.Request) (*repository.Submission, bool) {
	id, ok := mux.Vars(r)["id"]

	if !ok || id == "" {
		handleErrorResponse(w, http.StatusBadRequest, "no or invalid submission id provided.")
		return nil, false
	}

	submission, err := h.Repo.GetSubmission(r.Context(), id)

	if errors.Is(err, repository.ErrNotFound) {
		handleErrorResponse(w, http.StatusNotFound, "the submission does not exist by the provided id.")
		return nil, false
	}

	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to load submission")
		handleErrorResponse(w, http.StatusInternalServerError, "failed to load submission")

		return nil, false
	}

	return submission, true
}

func (h Handlers) HandleGetLanguages(w http.ResponseWriter, _ *http.Request) {
	handleJSONResponse(w, LanguagesResponse{
		Execute:     []string{judge.Language},
		Submissions: h.Languages,
	}, http.StatusOK)
}
