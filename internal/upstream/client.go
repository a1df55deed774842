// Package upstream is the submission protocol client: start/resume, draft
// save, final submit and the administrative exam operations against the
// learning-platform API. All failures are normalized to *Error at this
// boundary.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/examflow/internal/answers"
)

// Client talks to one upstream platform. It is safe for concurrent use;
// WithToken produces per-session views sharing the transport and the
// single-flight registry.
type Client struct {
	http    *http.Client
	baseURL string
	locale  string
	token   string
	starts  *startRegistry
	log     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport; tests point it at httptest servers.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the transport timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient builds the base client. locale is sent as Accept-Language on
// every request.
func NewClient(baseURL, locale string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		locale:  locale,
		starts:  newStartRegistry(),
		log:     log.With().Str("component", "upstream").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a shallow view of the client carrying a bearer
// credential. The single-flight registry stays shared so concurrent starts
// for the same item join even across views.
func (c *Client) WithToken(token string) *Client {
	view := *c
	view.token = token
	return &view
}

// StartOrResume begins or resumes the submission for a content item. Calls
// are single-flighted per (mode, section type, item) key: concurrent
// callers resolve to the same submission id with exactly one network call.
func (c *Client) StartOrResume(ctx context.Context, key StartKey, contentID string) (*StartResult, error) {
	return c.starts.do(key.String(), func() (*StartResult, error) {
		var (
			path string
			body any
		)
		switch key.Mode {
		case ModeHomework:
			path = fmt.Sprintf("/tasks/homeworks/%s/items/%s/start", contentID, key.ItemID)
		case ModeQuiz:
			path = fmt.Sprintf("/tasks/quizzes/%s/start", key.ItemID)
		default:
			path = fmt.Sprintf("/tasks/%s/start-section", key.ItemID)
			body = map[string]string{"section_type": key.SectionType, "content_id": contentID}
		}

		var res StartResult
		if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
			return nil, err
		}
		c.log.Info().
			Str("key", key.String()).
			Str("submission_id", res.SubmissionID).
			Str("status", string(res.Status)).
			Msg("Submission started")
		return &res, nil
	})
}

// SaveDraft replaces the submission's draft answers with the full current
// set. The endpoint is idempotent-replace; callers always send everything.
func (c *Client) SaveDraft(ctx context.Context, submissionID string, m answers.Map) error {
	path := fmt.Sprintf("/submissions/%s/save-draft", submissionID)
	body := map[string]any{"answers": m.Wire()}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// Submit finalizes the submission. force is a client-side gate, not a wire
// parameter: the body is identical either way.
func (c *Client) Submit(ctx context.Context, submissionID string, m answers.Map, force bool) (*SubmitResult, error) {
	path := fmt.Sprintf("/submissions/%s/submit/", submissionID)
	body := map[string]any{"answers": m.Wire()}
	var res SubmitResult
	if err := c.do(ctx, http.MethodPatch, path, body, &res); err != nil {
		return nil, err
	}
	c.log.Info().
		Str("submission_id", submissionID).
		Bool("force", force).
		Str("status", string(res.Status)).
		Msg("Submission submitted")
	return &res, nil
}

// FetchSubmission hydrates a submission (content document, saved answers)
// when the start response did not embed it.
func (c *Client) FetchSubmission(ctx context.Context, submissionID string) (*Submission, error) {
	var res Submission
	path := fmt.Sprintf("/submissions/%s/", submissionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do performs one JSON round trip and decodes into out (when non-nil).
// Non-2xx responses and transport failures come back as *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept-Language", c.locale)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return normalizeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Status: resp.StatusCode, Code: "DECODE", Message: err.Error()}
	}
	return nil
}
