// Package harness turns a user's function into a complete C++ program that
// declares every test case's inputs, calls the function, times it and prints
// one protocol line per test case.
package harness

import (
	"bytes"
	_ "embed"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"judge-engine/internal/config"
	"judge-engine/internal/judgeerr"
	"judge-engine/internal/marshal"
	"judge-engine/internal/testcase"
)

// LinePrefix starts every result line printed by the driver. Each run adds
// its own token, so a line is
// TEST_CASE_<token>_<id>:<id>:<elapsedMicros>:<serializedResult> and user
// code cannot print a line the grader accepts without knowing the token.
const LinePrefix = "TEST_CASE_"

// maxPrintedNodes bounds how many nodes the driver prints for a returned
// pointer structure, so a cyclic list cannot loop forever.
const maxPrintedNodes = 100_000

//go:embed templates/harness.cpp.tmpl
var harnessTemplate string

// requiredLibraries are needed by the driver itself regardless of the
// configured allowlist.
var requiredLibraries = []string{"iostream", "sstream", "iomanip", "string", "vector", "queue", "chrono"}

var (
	identifierPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	solutionClassPattern = regexp.MustCompile(`\b(class|struct)\s+Solution\b`)
)

// Source is the generated program. It only lives for the duration of a run.
type Source struct {
	Text      string
	TestCases int
	// LinePrefix is the run's result line prefix, to be handed to the grader.
	LinePrefix string
}

// RunPrefix is the result line prefix for the given run token.
func RunPrefix(token string) string {
	return LinePrefix + token + "_"
}

type Generator struct {
	libraries []string
	treeOrder marshal.TreeOrder
	template  *template.Template
}

type caseData struct {
	ID           int
	Declarations []string
	Arguments    string
}

type templateData struct {
	Libraries    []string
	Sentinel     int
	MaxNodes     int
	TreeOrder    marshal.TreeOrder
	UserCode     string
	ReturnType   string
	FunctionName string
	Prefix       string
	Cases        []caseData
}

func NewGenerator(policy config.SecurityPolicy, order marshal.TreeOrder) (*Generator, error) {
	tmpl, err := template.New("harness").Parse(harnessTemplate)

	if err != nil {
		return nil, errors.Wrap(err, "failed to parse harness template")
	}

	return &Generator{
		libraries: mergeLibraries(requiredLibraries, policy.AllowedLibraries),
		treeOrder: order,
		template:  tmpl,
	}, nil
}

// Generate builds the program. Any failure here happens before a sandbox is
// created: a bad function name or input value is a ValidationError and an
// unknown type is an UnsupportedTypeError.
func (g *Generator) Generate(userCode, functionName string, returnType testcase.TypeTag, testCases []testcase.TestCase) (*Source, error) {
	if !identifierPattern.MatchString(functionName) {
		return nil, judgeerr.NewValidationError(judgeerr.CategoryMalformedTestCase,
			"function name %q is not a valid identifier", functionName)
	}

	resultType, err := testcase.ParseTypeTag(string(returnType))

	if err != nil {
		return nil, err
	}

	prefix := RunPrefix(strings.ReplaceAll(uuid.NewString(), "-", ""))

	data := templateData{
		Libraries:    g.libraries,
		Sentinel:     marshal.TreeSentinel,
		MaxNodes:     maxPrintedNodes,
		TreeOrder:    g.treeOrder,
		UserCode:     wrapSolution(userCode),
		ReturnType:   resultType.CppType(),
		FunctionName: functionName,
		Prefix:       prefix,
		Cases:        make([]caseData, 0, len(testCases)),
	}

	for _, tc := range testCases {
		block, err := declareCase(tc)

		if err != nil {
			return nil, err
		}

		data.Cases = append(data.Cases, block)
	}

	var out bytes.Buffer

	if err := g.template.Execute(&out, data); err != nil {
		return nil, errors.Wrap(err, "failed to render harness")
	}

	return &Source{Text: out.String(), TestCases: len(testCases), LinePrefix: prefix}, nil
}

func declareCase(tc testcase.TestCase) (caseData, error) {
	if len(tc.Inputs) != len(tc.InputTypes) {
		return caseData{}, judgeerr.NewValidationError(judgeerr.CategoryMalformedTestCase,
			"test case %d has %d inputs but %d input types", tc.ID, len(tc.Inputs), len(tc.InputTypes))
	}

	block := caseData{ID: tc.ID}
	arguments := make([]string, 0, len(tc.Inputs))

	for i, input := range tc.Inputs {
		tag, err := testcase.ParseTypeTag(string(tc.InputTypes[i]))

		if err != nil {
			return caseData{}, err
		}

		literal, err := marshal.ToSourceLiteral(input, tag)

		if err != nil {
			var typeErr *judgeerr.UnsupportedTypeError

			if errors.As(err, &typeErr) {
				return caseData{}, err
			}

			return caseData{}, judgeerr.NewValidationError(judgeerr.CategoryMalformedTestCase,
				"test case %d input %d: %v", tc.ID, i, err)
		}

		name := "arg" + strconv.Itoa(i)
		block.Declarations = append(block.Declarations, tag.CppType()+" "+name+" = "+literal+";")
		arguments = append(arguments, name)
	}

	block.Arguments = strings.Join(arguments, ", ")
	return block, nil
}

// wrapSolution puts free functions into the calling class the driver uses.
func wrapSolution(userCode string) string {
	if solutionClassPattern.MatchString(userCode) {
		return userCode
	}

	return "class Solution {\npublic:\n" + userCode + "\n};"
}

func mergeLibraries(groups ...[]string) []string {
	seen := map[string]bool{}
	var merged []string

	for _, group := range groups {
		for _, library := range group {
			library = strings.TrimSpace(library)

			if library == "" || seen[library] {
				continue
			}

			seen[library] = true
			merged = append(merged, library)
		}
	}

	return merged
}
