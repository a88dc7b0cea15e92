package routing

import (
	"judge-engine/internal/judgeerr"
)

type ErrorResponse struct {
	Errors   []string          `json:"errors"`
	Category judgeerr.Category `json:"category,omitempty"`
}

// LanguagesResponse lists the languages accepted by each judging path.
type LanguagesResponse struct {
	Execute     []string `json:"execute"`
	Submissions []string `json:"submissions"`
}
