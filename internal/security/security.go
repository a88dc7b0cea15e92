// Package security is the static gate applied to submitted source and test
// cases before anything is generated or executed. It is lexical only and
// deliberately conservative: a false positive costs a user a rewrite, a false
// negative reaches the sandbox. It is defence in depth on top of the
// resource-capped container, never the only boundary.
package security

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"judge-engine/internal/config"
	"judge-engine/internal/judgeerr"
	"judge-engine/internal/testcase"
)

type Validator struct {
	limits   config.Limits
	keywords []string
	patterns []*regexp.Regexp
}

// NewValidator compiles the policy patterns once. An invalid pattern is a
// configuration error and is reported at startup rather than per request.
func NewValidator(limits config.Limits, policy config.SecurityPolicy) (*Validator, error) {
	validator := &Validator{limits: limits}

	for _, keyword := range policy.DeniedKeywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			validator.keywords = append(validator.keywords, strings.ToLower(keyword))
		}
	}

	for _, pattern := range policy.DeniedPatterns {
		compiled, err := regexp.Compile("(?i)" + pattern)

		if err != nil {
			return nil, errors.Wrapf(err, "invalid denied pattern %q", pattern)
		}

		validator.patterns = append(validator.patterns, compiled)
	}

	return validator, nil
}

// Validate runs every check in order and fails on the first violation.
func (v *Validator) Validate(code string, testCases []testcase.TestCase) error {
	if err := v.checkCodeLength(code); err != nil {
		return err
	}

	if len(testCases) > v.limits.MaxTestCases {
		return judgeerr.NewValidationError(judgeerr.CategoryTestCaseLimit,
			"at most %d test cases are allowed", v.limits.MaxTestCases)
	}

	for _, tc := range testCases {
		if err := v.checkTestCase(tc); err != nil {
			return err
		}
	}

	return v.checkContent(code)
}

// ValidateCode applies only the source checks. The asynchronous path uses it
// since its test cases come from the problem store, not the caller.
func (v *Validator) ValidateCode(code string) error {
	if err := v.checkCodeLength(code); err != nil {
		return err
	}

	return v.checkContent(code)
}

func (v *Validator) checkCodeLength(code string) error {
	if strings.TrimSpace(code) == "" {
		return judgeerr.NewValidationError(judgeerr.CategoryMalformedTestCase, "code must not be empty")
	}

	if len(code) > v.limits.MaxCodeLength {
		return judgeerr.NewValidationError(judgeerr.CategorySizeLimit,
			"code exceeds %d characters", v.limits.MaxCodeLength)
	}

	return nil
}

func (v *Validator) checkTestCase(tc testcase.TestCase) error {
	if len(tc.Inputs) != len(tc.InputTypes) {
		return judgeerr.NewValidationError(judgeerr.CategoryMalformedTestCase,
			"test case %d has %d inputs but %d input types", tc.ID, len(tc.Inputs), len(tc.InputTypes))
	}

	for i, input := range tc.Inputs {
		tag, err := testcase.ParseTypeTag(string(tc.InputTypes[i]))

		if err != nil {
			return judgeerr.NewValidationError(judgeerr.CategoryUnsupportedType,
				"test case %d input %d has an unsupported type", tc.ID, i)
		}

		if !tag.IsArray() {
			continue
		}

		if count := countElements(input); count > v.limits.MaxArrayLength {
			return judgeerr.NewValidationError(judgeerr.CategorySizeLimit,
				"test case %d input %d exceeds %d elements", tc.ID, i, v.limits.MaxArrayLength)
		}
	}

	return nil
}

// checkContent reports a generic category only; the matched keyword is never
// echoed back so the message does not teach circumvention.
func (v *Validator) checkContent(code string) error {
	lowered := strings.ToLower(code)

	for _, keyword := range v.keywords {
		if strings.Contains(lowered, keyword) {
			return judgeerr.NewValidationError(judgeerr.CategoryForbiddenConstruct,
				"code uses a construct that is not allowed")
		}
	}

	for _, pattern := range v.patterns {
		if pattern.MatchString(code) {
			return judgeerr.NewValidationError(judgeerr.CategoryForbiddenConstruct,
				"code uses a construct that is not allowed")
		}
	}

	return nil
}

// countElements counts every leaf of a (possibly nested) array so a matrix
// is measured by its total size.
func countElements(value testcase.Value) int {
	elements, ok := value.([]any)

	if !ok {
		return 1
	}

	count := 0

	for _, element := range elements {
		count += countElements(element)
	}

	return count
}
