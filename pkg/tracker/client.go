package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/qfsync/pkg/junit"
	"github.com/sirupsen/logrus"
)

const (
	// CycleStatusUnexecuted is the tracker's status code for a cycle
	// that has not been run yet.
	CycleStatusUnexecuted = 1

	// maxErrorBody bounds how much of a failed response is kept.
	maxErrorBody = 64 << 10

	defaultCycleNamePrefix = "GitHub AutoTest"

	cycleNameLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string

	// Timeout is applied to each request. Zero leaves the HTTP client's
	// default behavior in place.
	Timeout time.Duration

	// Limiter paces SubmitResult. Nil disables throttling.
	Limiter Limiter

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// Client talks to the tracker's test cycle API.
type Client struct {
	log        logrus.FieldLogger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    Limiter
	now        func() time.Time
}

// CycleRequest describes the test cycle to create.
type CycleRequest struct {
	TestPhaseID           string
	TestSuiteAssignmentID string
	TargetPriorities      []string
	NamePrefix            string
}

// ResultRequest describes one test result to submit.
type ResultRequest struct {
	TestPhaseID           string
	TestSuiteAssignmentID string
	CycleID               int64
	UserID                string
	CaseNo                int
	Record                junit.Record
}

type cycleResponse struct {
	ID *int64 `json:"id"`
}

// NewClient creates a tracker client.
func NewClient(log logrus.FieldLogger, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("tracker base URL is required")
	}

	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing tracker base URL: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		log:        log.WithField("component", "tracker"),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		limiter:    opts.Limiter,
		now:        time.Now,
	}, nil
}

// CreateCycle creates a test cycle and returns its id.
func (c *Client) CreateCycle(ctx context.Context, req CycleRequest) (int64, error) {
	now := c.now().UTC()
	today := now.Format(dateLayout)

	prefix := req.NamePrefix
	if prefix == "" {
		prefix = defaultCycleNamePrefix
	}

	form := url.Values{}
	form.Set("test_cycle[name]", prefix+" "+now.Format(cycleNameLayout))
	form.Set("test_cycle[start_on]", today)
	form.Set("test_cycle[end_on]", today)
	form.Set("test_cycle[status]", strconv.Itoa(CycleStatusUnexecuted))
	form.Set("test_cycle[test_suite_assignment_id]", req.TestSuiteAssignmentID)

	for _, p := range req.TargetPriorities {
		form.Add("test_cycle[target_priorities][]", p)
	}

	endpoint := fmt.Sprintf(
		"%s/test_phases/%s/test_suite_assignments/%s/test_cycles.json",
		c.baseURL, req.TestPhaseID, req.TestSuiteAssignmentID,
	)

	body, err := c.post(ctx, "creating test cycle", endpoint, form)
	if err != nil {
		return 0, err
	}

	var resp cycleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decoding test cycle: %v", ErrMalformedResponse, err)
	}

	if resp.ID == nil {
		return 0, fmt.Errorf("%w: test cycle response has no id", ErrMalformedResponse)
	}

	return *resp.ID, nil
}

// SubmitResult posts one test result into a cycle. It waits on the
// configured limiter before sending and reports completion to it once the
// tracker accepted the result.
func (c *Client) SubmitResult(ctx context.Context, req ResultRequest) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for submit slot: %w", err)
		}
	}

	record := req.Record

	form := url.Values{}
	form.Set("test_result[test_case_no]", strconv.Itoa(req.CaseNo))
	form.Set("test_result[result]", string(record.Status))
	form.Set("test_result[user_id]", req.UserID)
	form.Set("test_result[executed_at]", c.now().UTC().Format(time.RFC3339))
	form.Set("test_result[content1]", record.Identifier)
	form.Set("test_result[content2]", FormatSeconds(record.ExecutionTime))

	if record.ErrorMessage != "" {
		form.Set("test_result[content3]", Truncate(record.ErrorMessage, MaxErrorMessageLength))
	}

	endpoint := fmt.Sprintf(
		"%s/test_phases/%s/test_suite_assignments/%s/test_cycles/%d/test_results.json",
		c.baseURL, req.TestPhaseID, req.TestSuiteAssignmentID, req.CycleID,
	)

	if _, err := c.post(ctx, "submitting test result", endpoint, form); err != nil {
		return err
	}

	if c.limiter != nil {
		c.limiter.Done()
	}

	return nil
}

// post sends a form-encoded POST with the api key as query parameter and
// returns the body of a 2xx response.
func (c *Client) post(ctx context.Context, op, endpoint string, form url.Values) ([]byte, error) {
	query := url.Values{"api_key": {c.apiKey}}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint+"?"+query.Encode(), strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Strip the URL so the api key does not end up in logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}

		return nil, fmt.Errorf("%s: executing request: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Errorf("Tracker rejected request (%s)", op)

		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", op, err)
	}

	return body, nil
}
