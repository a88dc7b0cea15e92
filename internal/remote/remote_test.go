package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judge-engine/internal/grader"
)

type fakeService struct {
	t           *testing.T
	mu          sync.Mutex
	created     []submissionPayload
	polls       atomic.Int32
	pendingFor  int32
	pollFailure int32
	createCode  int
	authToken   string
}

func b64(value string) *string {
	encoded := base64.StdEncoding.EncodeToString([]byte(value))
	return &encoded
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.authToken != "" {
		assert.Equal(f.t, f.authToken, r.Header.Get(authTokenHeader))
	}

	switch r.Method {
	case http.MethodPost:
		assert.Equal(f.t, "/submissions/batch", r.URL.Path)
		assert.Equal(f.t, "true", r.URL.Query().Get("base64_encoded"))

		if f.createCode != 0 {
			w.WriteHeader(f.createCode)
			_, _ = w.Write([]byte(`{"error":"bad language"}`))
			return
		}

		var payload batchPayload
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&payload))

		f.mu.Lock()
		f.created = payload.Submissions
		f.mu.Unlock()

		tokens := make([]tokenPayload, len(payload.Submissions))
		for i := range tokens {
			tokens[i] = tokenPayload{Token: "token-" + string(rune('a'+i))}
		}

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(tokens)
	case http.MethodGet:
		poll := f.polls.Add(1)

		if poll <= f.pollFailure {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		tokens := strings.Split(r.URL.Query().Get("tokens"), ",")
		results := resultsPayload{}

		for _, token := range tokens {
			item := resultPayload{Token: token, Status: Status{ID: StatusAccepted, Description: "Accepted"}, Stdout: b64("8\n")}

			if poll <= f.pendingFor+f.pollFailure {
				item = resultPayload{Token: token, Status: Status{ID: StatusProcessing, Description: "Processing"}}
			}

			results.Submissions = append(results.Submissions, item)
		}

		_ = json.NewEncoder(w).Encode(results)
	}
}

func newTestClient(t *testing.T, service *fakeService, maxPolls uint64) *Client {
	server := httptest.NewServer(service)
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:             server.URL + "/",
		AuthToken:           service.authToken,
		PollInitialInterval: time.Millisecond,
		PollMaxInterval:     2 * time.Millisecond,
		MaxPolls:            maxPolls,
	})
}

func TestExecuteBatch(t *testing.T) {
	t.Run("should poll until every submission is terminal", func(t *testing.T) {
		service := &fakeService{t: t, pendingFor: 2, authToken: "secret"}
		client := newTestClient(t, service, 10)

		results, err := client.ExecuteBatch(context.Background(), []Request{
			{LanguageID: 54, SourceCode: "int main() {}", Stdin: "5\n3\n"},
			{LanguageID: 54, SourceCode: "int main() {}", Stdin: "1\n2\n"},
		})

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "token-a", results[0].Token)
		assert.Equal(t, "8\n", results[0].Stdout)
		assert.Equal(t, grader.RemoteFinished, results[0].Outcome())
		assert.Equal(t, int32(3), service.polls.Load())

		service.mu.Lock()
		defer service.mu.Unlock()

		require.Len(t, service.created, 2)
		assert.Equal(t, *b64("int main() {}"), service.created[0].SourceCode)
		assert.Equal(t, *b64("5\n3\n"), service.created[0].Stdin)
	})

	t.Run("should give up after the polling budget", func(t *testing.T) {
		service := &fakeService{t: t, pendingFor: 100}
		client := newTestClient(t, service, 2)

		_, err := client.ExecuteBatch(context.Background(), []Request{{LanguageID: 54, SourceCode: "x"}})

		assert.ErrorIs(t, err, ErrPollBudgetExhausted)
		assert.Equal(t, int32(3), service.polls.Load())
	})

	t.Run("should retry server errors while polling", func(t *testing.T) {
		service := &fakeService{t: t, pollFailure: 2}
		client := newTestClient(t, service, 5)

		results, err := client.ExecuteBatch(context.Background(), []Request{{LanguageID: 54, SourceCode: "x"}})

		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("should not retry rejected batches", func(t *testing.T) {
		service := &fakeService{t: t, createCode: http.StatusUnprocessableEntity}
		client := newTestClient(t, service, 5)

		_, err := client.ExecuteBatch(context.Background(), []Request{{LanguageID: 999, SourceCode: "x"}})

		assert.ErrorContains(t, err, "422")
		assert.Zero(t, service.polls.Load())
	})

	t.Run("should skip empty batches", func(t *testing.T) {
		client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})

		results, err := client.ExecuteBatch(context.Background(), nil)

		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestDecodeResult(t *testing.T) {
	wrapped := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 90)))
	wrapped = wrapped[:60] + "\n" + wrapped[60:]

	result, err := decodeResult(resultPayload{Token: "a", Stdout: &wrapped, CompileOutput: b64("error")})

	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 90), result.Stdout)
	assert.Equal(t, "error", result.CompileOutput)
	assert.Empty(t, result.Stderr)

	broken := "!!!"
	_, err = decodeResult(resultPayload{Token: "a", Stdout: &broken})
	assert.Error(t, err)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		status int
		want   grader.RemoteStatus
	}{
		{StatusAccepted, grader.RemoteFinished},
		{StatusWrongAnswer, grader.RemoteFinished},
		{StatusTimeLimitExceeded, grader.RemoteTimeLimitExceeded},
		{StatusCompilationError, grader.RemoteCompileError},
		{StatusRuntimeErrorFirst, grader.RemoteRuntimeError},
		{11, grader.RemoteRuntimeError},
		{StatusInternalError, grader.RemoteRuntimeError},
		{StatusExecFormatError, grader.RemoteRuntimeError},
	}

	for _, tt := range tests {
		result := Result{Status: Status{ID: tt.status}}
		assert.Equal(t, tt.want, result.Outcome(), "status %d", tt.status)
	}
}

func TestLanguageID(t *testing.T) {
	for language, want := range map[string]int{"cpp": 54, "C++": 54, "c": 50, "java": 62, "python3": 71, "javascript": 63, "go": 60} {
		id, err := LanguageID(language)
		require.NoError(t, err, language)
		assert.Equal(t, want, id, language)
	}

	_, err := LanguageID("brainfuck")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestCanonicalLanguage(t *testing.T) {
	language, err := CanonicalLanguage(" Node ")
	require.NoError(t, err)
	assert.Equal(t, "javascript", language)

	_, err = CanonicalLanguage("cobol")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}
