package repository

import (
	"context"

	"gorm.io/gorm"

	"judge-engine/internal/testcase"
)

// Problem is the stored description of a function the user implements.
type Problem struct {
	ID             string          `gorm:"primarykey" json:"id"`
	Title          string          `json:"title"`
	FunctionName   string          `json:"functionName"`
	FunctionParams []FunctionParam `gorm:"serializer:json" json:"functionParams"`
	ReturnType     string          `json:"returnType"`

	Templates []ProblemTemplate `gorm:"foreignKey:ProblemID" json:"templates,omitempty"`
	TestCases []ProblemTestCase `gorm:"foreignKey:ProblemID" json:"testCases,omitempty"`
}

type FunctionParam struct {
	Name string           `json:"name"`
	Type testcase.TypeTag `json:"type"`
}

// ProblemTemplate is the per language wrapper program. WrapperCode holds a
// single placeholder that is replaced by the user's code.
type ProblemTemplate struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	ProblemID   string `gorm:"uniqueIndex:idx_problem_language" json:"problemId"`
	Language    string `gorm:"uniqueIndex:idx_problem_language" json:"language"`
	WrapperCode string `json:"wrapperCode"`
}

// ProblemTestCase holds one input per function parameter, keyed by the
// parameter name, and the expected return value.
type ProblemTestCase struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	ProblemID string         `gorm:"index" json:"problemId"`
	Position  int            `json:"position"`
	Input     map[string]any `gorm:"serializer:json" json:"input"`
	Expected  any            `gorm:"serializer:json" json:"expected"`
}

// Template returns the wrapper for the language, if the problem has one.
func (p *Problem) Template(language string) (*ProblemTemplate, bool) {
	for i := range p.Templates {
		if p.Templates[i].Language == language {
			return &p.Templates[i], true
		}
	}

	return nil, false
}

func (c Client) InsertProblem(ctx context.Context, problem *Problem) error {
	return c.DB.WithContext(ctx).Create(problem).Error
}

func (c Client) GetProblem(ctx context.Context, id string) (*Problem, error) {
	var problem Problem

	err := c.DB.WithContext(ctx).
		Preload("Templates").
		Preload("TestCases", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&problem, "id = ?", id).Error

	if err != nil {
		return nil, notFound(err)
	}

	return &problem, nil
}
