// Package remote talks to a Judge0 compatible execution service: a batch of
// submissions is created in one request and polled until every item has
// reached a terminal status.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/grader"
)

var (
	ErrPollBudgetExhausted = errors.New("remote batch did not finish within the polling budget")
	ErrUnsupportedLanguage = errors.New("language is not supported by the remote service")

	errBatchPending = errors.New("remote batch still has pending submissions")
)

// Status ids reported by the service. Everything from 7 up to 12 is a
// runtime error variant (signals, non zero exit and the like).
const (
	StatusInQueue           = 1
	StatusProcessing        = 2
	StatusAccepted          = 3
	StatusWrongAnswer       = 4
	StatusTimeLimitExceeded = 5
	StatusCompilationError  = 6
	StatusRuntimeErrorFirst = 7
	StatusInternalError     = 13
	StatusExecFormatError   = 14
)

const (
	maxResponseBodyBytes = 16 << 20
	resultFields         = "token,stdout,stderr,compile_output,message,status,time,memory"
	authTokenHeader      = "X-Auth-Token"

	defaultPollInitialBackoff = 500 * time.Millisecond
	defaultPollMaxBackoff     = 5 * time.Second
	defaultMaxPolls           = 20
)

var languageIDs = map[string]int{
	"c":          50,
	"cpp":        54,
	"go":         60,
	"java":       62,
	"javascript": 63,
	"python":     71,
}

// CanonicalLanguage resolves the aliases of a supported language to the
// name stored with problem templates.
func CanonicalLanguage(language string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(language))

	switch key {
	case "c++", "cxx":
		key = "cpp"
	case "js", "node":
		key = "javascript"
	case "python3", "py":
		key = "python"
	case "golang":
		key = "go"
	}

	if _, ok := languageIDs[key]; !ok {
		return "", errors.Wrapf(ErrUnsupportedLanguage, "language %q", language)
	}

	return key, nil
}

// LanguageID maps a language name to the service's language id.
func LanguageID(language string) (int, error) {
	key, err := CanonicalLanguage(language)

	if err != nil {
		return 0, err
	}

	return languageIDs[key], nil
}

// Languages lists the language names the service accepts.
func Languages() []string {
	return []string{"c", "cpp", "go", "java", "javascript", "python"}
}

// Request is one program run: source plus its standard input.
type Request struct {
	LanguageID int
	SourceCode string
	Stdin      string
}

type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Result is a decoded batch item.
type Result struct {
	Token         string
	Status        Status
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	Time          string
	Memory        int
}

// Terminal reports whether the service has finished with the item.
func (r *Result) Terminal() bool {
	return r.Status.ID > StatusProcessing
}

// Outcome classifies the status for grading.
func (r *Result) Outcome() grader.RemoteStatus {
	switch id := r.Status.ID; {
	case id == StatusCompilationError:
		return grader.RemoteCompileError
	case id == StatusTimeLimitExceeded:
		return grader.RemoteTimeLimitExceeded
	case id >= StatusRuntimeErrorFirst:
		return grader.RemoteRuntimeError
	default:
		return grader.RemoteFinished
	}
}

//go:generate mockgen -destination=mock_remote/remote.go judge-engine/internal/remote BatchExecutor

// BatchExecutor runs a batch of programs and returns their results in
// request order.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, requests []Request) ([]Result, error)
}

type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration

	PollInitialInterval time.Duration
	PollMaxInterval     time.Duration
	MaxPolls            uint64
}

type Client struct {
	config Config
	http   *http.Client
}

func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.PollInitialInterval <= 0 {
		config.PollInitialInterval = defaultPollInitialBackoff
	}

	if config.PollMaxInterval <= 0 {
		config.PollMaxInterval = defaultPollMaxBackoff
	}

	if config.MaxPolls == 0 {
		config.MaxPolls = defaultMaxPolls
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{config: config, http: &http.Client{Timeout: config.Timeout}}
}

type submissionPayload struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin"`
}

type batchPayload struct {
	Submissions []submissionPayload `json:"submissions"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

type resultPayload struct {
	Token         string  `json:"token"`
	Status        Status  `json:"status"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Time          *string `json:"time"`
	Memory        *int    `json:"memory"`
}

type resultsPayload struct {
	Submissions []resultPayload `json:"submissions"`
}

// ExecuteBatch creates the batch and polls it with exponential backoff until
// every item is terminal. When the budget runs out ErrPollBudgetExhausted is
// returned.
func (c *Client) ExecuteBatch(ctx context.Context, requests []Request) ([]Result, error) {
	if len(requests) == 0 {
		return []Result{}, nil
	}

	tokens, err := c.createBatch(ctx, requests)

	if err != nil {
		return nil, err
	}

	log.Debug().Int("submissions", len(tokens)).Msg("created remote batch")

	var results []Result

	poll := func() error {
		polled, err := c.fetchBatch(ctx, tokens)

		if err != nil {
			return err
		}

		for i := range polled {
			if !polled[i].Terminal() {
				return errBatchPending
			}
		}

		results = polled
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.PollInitialInterval
	policy.MaxInterval = c.config.PollMaxInterval
	policy.MaxElapsedTime = 0

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, c.config.MaxPolls), ctx)

	if err := backoff.Retry(poll, retry); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "polling remote batch")
		}

		if errors.Is(err, errBatchPending) {
			return nil, ErrPollBudgetExhausted
		}

		return nil, err
	}

	return results, nil
}

func (c *Client) createBatch(ctx context.Context, requests []Request) ([]string, error) {
	payload := batchPayload{Submissions: make([]submissionPayload, 0, len(requests))}

	for _, request := range requests {
		payload.Submissions = append(payload.Submissions, submissionPayload{
			LanguageID: request.LanguageID,
			SourceCode: encode(request.SourceCode),
			Stdin:      encode(request.Stdin),
		})
	}

	body, err := json.Marshal(payload)

	if err != nil {
		return nil, errors.Wrap(err, "failed to encode batch")
	}

	var created []tokenPayload

	if err := c.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=true", body, &created); err != nil {
		return nil, errors.Wrap(err, "failed to create batch")
	}

	if len(created) != len(requests) {
		return nil, errors.Errorf("remote service returned %d tokens for %d submissions", len(created), len(requests))
	}

	tokens := make([]string, len(created))

	for i, item := range created {
		if item.Token == "" {
			return nil, errors.Errorf("remote service rejected submission %d", i)
		}

		tokens[i] = item.Token
	}

	return tokens, nil
}

func (c *Client) fetchBatch(ctx context.Context, tokens []string) ([]Result, error) {
	query := url.Values{}
	query.Set("tokens", strings.Join(tokens, ","))
	query.Set("base64_encoded", "true")
	query.Set("fields", resultFields)

	var payload resultsPayload

	if err := c.do(ctx, http.MethodGet, "/submissions/batch?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}

	if len(payload.Submissions) != len(tokens) {
		return nil, backoff.Permanent(errors.Errorf("remote service returned %d results for %d tokens",
			len(payload.Submissions), len(tokens)))
	}

	results := make([]Result, len(payload.Submissions))

	for i, item := range payload.Submissions {
		result, err := decodeResult(item)

		if err != nil {
			return nil, backoff.Permanent(err)
		}

		results[i] = result
	}

	return results, nil
}

// do sends the request and decodes the JSON response into out. Server
// errors are retryable, client errors are permanent.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader

	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)

	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "failed to build request"))
	}

	req.Header.Set("Content-Type", "application/json")

	if c.config.AuthToken != "" {
		req.Header.Set(authTokenHeader, c.config.AuthToken)
	}

	resp, err := c.http.Do(req)

	if err != nil {
		return errors.Wrap(err, "remote request failed")
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))

	if err != nil {
		return errors.Wrap(err, "failed to read remote response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Errorf("remote service error %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return backoff.Permanent(errors.Errorf("remote service rejected request %d: %s",
			resp.StatusCode, truncate(string(data), 200)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(errors.Wrap(err, "failed to decode remote response"))
	}

	return nil
}

func decodeResult(item resultPayload) (Result, error) {
	result := Result{Token: item.Token, Status: item.Status}

	fields := []struct {
		name   string
		source *string
		target *string
	}{
		{"stdout", item.Stdout, &result.Stdout},
		{"stderr", item.Stderr, &result.Stderr},
		{"compile_output", item.CompileOutput, &result.CompileOutput},
		{"message", item.Message, &result.Message},
	}

	for _, field := range fields {
		decoded, err := decode(field.source)

		if err != nil {
			return Result{}, errors.Wrapf(err, "failed to decode %s of %s", field.name, item.Token)
		}

		*field.target = decoded
	}

	if item.Time != nil {
		result.Time = *item.Time
	}

	if item.Memory != nil {
		result.Memory = *item.Memory
	}

	return result, nil
}

func encode(value string) string {
	return base64.StdEncoding.EncodeToString([]byte(value))
}

// decode reads a base64 field. The service wraps long values over several
// lines.
func decode(value *string) (string, error) {
	if value == nil {
		return "", nil
	}

	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(*value)
	data, err := base64.StdEncoding.DecodeString(cleaned)

	if err != nil {
		return "", err
	}

	return string(data), nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	return fmt.Sprintf("%s...", text[:limit])
}
