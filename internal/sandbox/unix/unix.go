package unix

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ConvertPathToUnix takes a complete path and converts it to a form docker
// accepts for bind mounts. Windows paths become C:\a\b => /c/a/b, unix paths
// are only made absolute.
func ConvertPathToUnix(path string) string {
	abs, _ := filepath.Abs(path)

	if !strings.Contains(abs, ":") {
		return filepath.ToSlash(abs)
	}

	split := strings.Split(abs, ":")

	directory := split[1:]
	rootDrive := strings.ToLower(split[0])

	return strings.ReplaceAll(fmt.Sprintf("/%s%s", rootDrive, strings.Join(directory, "")), "\\", "/")
}
