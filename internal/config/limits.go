package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"judge-engine/internal/memory"
)

// Limits are the resource ceilings applied to every judging run. They are
// filled from flags at startup and handed to each component by value.
type Limits struct {
	MaxCodeLength  int
	MaxOutputSize  int
	MaxTestCases   int
	MaxArrayLength int

	CompileTimeout time.Duration
	RunTimeout     time.Duration
	TotalTimeout   time.Duration

	Memory    memory.Memory
	Stack     memory.Memory
	PidsLimit int64
	NanoCPUs  int64

	MaxConcurrent int
	MaxQueueSize  int
	MaxQueueAge   time.Duration
}

// DefaultLimits returns the ceilings used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		MaxCodeLength:  10_000,
		MaxOutputSize:  64 * 1024,
		MaxTestCases:   50,
		MaxArrayLength: 1_000,
		CompileTimeout: 5 * time.Second,
		RunTimeout:     10 * time.Second,
		TotalTimeout:   15 * time.Second,
		Memory:         256 * memory.Megabyte,
		Stack:          64 * memory.Megabyte,
		PidsLimit:      64,
		NanoCPUs:       1_000_000_000,
		MaxConcurrent:  4,
		MaxQueueSize:   100,
		MaxQueueAge:    time.Minute,
	}
}

// SecurityPolicy is the lexical gate applied to submitted source. Keywords
// are matched case-insensitively as substrings, patterns as regular
// expressions against the raw source.
type SecurityPolicy struct {
	DeniedKeywords   []string `json:"deniedKeywords"`
	DeniedPatterns   []string `json:"deniedPatterns"`
	AllowedLibraries []string `json:"allowedLibraries"`
}

// DefaultSecurityPolicy covers process control, networking, filesystem
// mutation and concurrency primitives.
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		DeniedKeywords: []string{
			// process control
			"system(", "popen", "fork", "execl", "execv", "execve", "execvp", "kill(",
			"raise(", "abort(", "exit(", "_exit", "ptrace", "setuid", "setgid", "getenv",
			"dlopen", "__asm", "asm(", "asm volatile",
			// networking
			"socket", "connect(", "bind(", "listen(", "accept(", "gethostbyname",
			"getaddrinfo", "sendto", "recvfrom",
			// filesystem mutation
			"fopen", "freopen", "ofstream", "ifstream", "fstream", "remove(", "unlink",
			"rename(", "mkdir", "rmdir", "chmod", "chown", "truncate", "filesystem::",
			// concurrency primitives
			"thread", "mutex", "async(", "future<", "condition_variable", "atomic<",
			"semaphore", "mmap",
		},
		DeniedPatterns: []string{
			`#\s*include\s*[<"]\s*(sys/|unistd|fcntl|signal|csignal|netinet/|arpa/|netdb|dlfcn|spawn|pthread|thread|future|filesystem|fstream|windows|winsock)`,
			`\b(system|popen|fork|vfork|clone|execl|execlp|execle|execv|execvp|execve|posix_spawn)\s*\(`,
			`#\s*(define|undef)\s+(main|class|struct|public|private)\b`,
			`#\s*pragma\s+comment`,
			`__attribute__\s*\(\(\s*(constructor|destructor)`,
			`\bsyscall\s*\(`,
		},
		AllowedLibraries: []string{
			"iostream", "sstream", "iomanip", "string", "vector", "queue", "deque", "stack",
			"list", "map", "unordered_map", "set", "unordered_set", "algorithm", "numeric",
			"utility", "functional", "climits", "cmath", "cstring", "chrono", "limits",
			"tuple", "bitset", "array",
		},
	}
}

// LoadSecurityPolicy reads a JSON policy file. Empty fields keep their
// default values so a file may only override the denylist, for example.
func LoadSecurityPolicy(path string) (SecurityPolicy, error) {
	policy := DefaultSecurityPolicy()

	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)

	if err != nil {
		return policy, errors.Wrapf(err, "failed to read security policy %s", path)
	}

	var override SecurityPolicy

	if err := json.Unmarshal(data, &override); err != nil {
		return policy, errors.Wrapf(err, "failed to parse security policy %s", path)
	}

	if len(override.DeniedKeywords) > 0 {
		policy.DeniedKeywords = override.DeniedKeywords
	}

	if len(override.DeniedPatterns) > 0 {
		policy.DeniedPatterns = override.DeniedPatterns
	}

	if len(override.AllowedLibraries) > 0 {
		policy.AllowedLibraries = override.AllowedLibraries
	}

	return policy, nil
}
