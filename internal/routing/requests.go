package routing

// CreateSubmissionRequest starts an asynchronous submission for a stored
// problem.
type CreateSubmissionRequest struct {
	ProblemID string `json:"problemId" validate:"required"`
	Code      string `json:"code" validate:"required"`
	Language  string `json:"language" validate:"required"`
}
