package sandbox

import (
	"strings"

	"github.com/pkg/errors"
)

var ErrUnsupportedLanguage = errors.New("language is not supported by the sandbox")

type LanguageCompiler struct {
	// The display name of the language the compiler builds, e.g. C++.
	language string
	// The command used to run the program once compiled, relative to the
	// mounted workspace.
	runSteps string
	// The steps used to compile the program, each a single command line.
	compileSteps []string
	// This is the name of docker image that will be executed for the given
	// code sample, most likely virtual_machine_language, e.g.
	// virtual_machine_cpp. The image must contain the runner at /runner.
	VirtualMachineName string
	// The file the source is written to inside the workspace.
	SourceFile string
	// The file holding the standard input of the program.
	InputFile string
}

func (l *LanguageCompiler) Language() string {
	return l.language
}

var Compilers = map[string]LanguageCompiler{
	"cpp": {
		language: "C++",
		runSteps: "/input/program",
		compileSteps: []string{
			"g++ -std=c++17 -O2 -pipe -o /input/program /input/source.cpp",
		},
		VirtualMachineName: "virtual_machine_cpp",
		SourceFile:         "source.cpp",
		InputFile:          "input",
	},
}

// GetCompilerByLanguage resolves a compiler, accepting the common spellings
// of C++.
func GetCompilerByLanguage(language string) (*LanguageCompiler, error) {
	key := strings.ToLower(strings.TrimSpace(language))

	switch key {
	case "c++", "cplusplus", "cxx":
		key = "cpp"
	}

	compiler, ok := Compilers[key]

	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedLanguage, "language %q", language)
	}

	return &compiler, nil
}
