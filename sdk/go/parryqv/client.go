package parryqv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the Parry-QV gateway REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
}

// APIError represents server side validation or chain errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("parryqv api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("parryqv api error (%d): %s", e.StatusCode, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewClient instantiates a client for the gateway API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAPIKey sends key as X-API-Key on every request. The gateway requires
// it on mutation routes when API keys are configured.
func (c *Client) SetAPIKey(key string) {
	c.apiKey = strings.TrimSpace(key)
}

// Projects lists every project in enumeration order.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.get(ctx, "/api/v1/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Project fetches one project by address.
func (c *Client) Project(ctx context.Context, address string) (Project, error) {
	var out Project
	err := c.get(ctx, "/api/v1/projects/"+url.PathEscape(address), nil, &out)
	return out, err
}

// Polls lists the polls of a project.
func (c *Client) Polls(ctx context.Context, project string) ([]Poll, error) {
	var out []Poll
	if err := c.get(ctx, "/api/v1/projects/"+url.PathEscape(project)+"/polls", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Poll fetches one poll.
func (c *Client) Poll(ctx context.Context, project string, index uint64) (Poll, error) {
	var out Poll
	endpoint := fmt.Sprintf("/api/v1/projects/%s/polls/%d", url.PathEscape(project), index)
	err := c.get(ctx, endpoint, nil, &out)
	return out, err
}

// Membership fetches wallet's standing in project.
func (c *Client) Membership(ctx context.Context, project, wallet string) (Membership, error) {
	var out Membership
	endpoint := fmt.Sprintf("/api/v1/projects/%s/members/%s", url.PathEscape(project), url.PathEscape(wallet))
	err := c.get(ctx, endpoint, nil, &out)
	return out, err
}

// VoteRecord fetches wallet's vote on a poll.
func (c *Client) VoteRecord(ctx context.Context, project string, index uint64, wallet string) (VoteRecord, error) {
	var out VoteRecord
	endpoint := fmt.Sprintf("/api/v1/projects/%s/polls/%d/votes/%s", url.PathEscape(project), index, url.PathEscape(wallet))
	err := c.get(ctx, endpoint, nil, &out)
	return out, err
}

// PassportScore fetches wallet's identity score.
func (c *Client) PassportScore(ctx context.Context, wallet string) (PassportScore, error) {
	var out PassportScore
	err := c.get(ctx, "/api/v1/passport/"+url.PathEscape(wallet), nil, &out)
	return out, err
}

// Quote previews the cost of votes. tokensLeft is optional.
func (c *Client) Quote(ctx context.Context, votes string, tokensLeft string) (Quote, error) {
	query := url.Values{"votes": {votes}}
	if tokensLeft != "" {
		query.Set("tokensLeft", tokensLeft)
	}
	var out Quote
	err := c.get(ctx, "/api/v1/quote", query, &out)
	return out, err
}

// Session returns the gateway wallet's connection state.
func (c *Client) Session(ctx context.Context) (Session, error) {
	var out Session
	err := c.get(ctx, "/api/v1/session", nil, &out)
	return out, err
}

// Connect asks the gateway wallet for account access.
func (c *Client) Connect(ctx context.Context) (Session, error) {
	var out Session
	err := c.post(ctx, "/api/v1/session/connect", nil, &out)
	return out, err
}

// SelectAccount switches the gateway wallet to address.
func (c *Client) SelectAccount(ctx context.Context, address string) (Session, error) {
	var out Session
	err := c.post(ctx, "/api/v1/session/select", map[string]string{"address": address}, &out)
	return out, err
}

// Disconnect revokes the gateway wallet authorisation.
func (c *Client) Disconnect(ctx context.Context) (Session, error) {
	var out Session
	err := c.post(ctx, "/api/v1/session/disconnect", nil, &out)
	return out, err
}

// SubmitAction queues a mutation.
func (c *Client) SubmitAction(ctx context.Context, req ActionRequest) (Action, error) {
	var out Action
	err := c.post(ctx, "/api/v1/actions", req, &out)
	return out, err
}

// Action fetches one action by id.
func (c *Client) Action(ctx context.Context, id string) (Action, error) {
	var out Action
	err := c.get(ctx, "/api/v1/actions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListActions lists actions matching filter, most recently updated first
// unless filter.Ascending is set.
func (c *Client) ListActions(ctx context.Context, filter ActionFilter) ([]Action, error) {
	var out []Action
	if err := c.get(ctx, "/api/v1/actions", filter.query(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActionStats aggregates actions matching filter.
func (c *Client) ActionStats(ctx context.Context, filter ActionFilter) (ActionStats, error) {
	var out ActionStats
	err := c.get(ctx, "/api/v1/actions/stats", filter.query(), &out)
	return out, err
}

// WaitForAction polls the action until it is confirmed or failed, or ctx ends.
func (c *Client) WaitForAction(ctx context.Context, id string, interval time.Duration) (Action, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		current, err := c.Action(ctx, id)
		if err != nil {
			return Action{}, err
		}
		if current.Finished() {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-ticker.C:
		}
	}
}

// UploadMedia pins an image and returns its content hash.
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, body io.Reader) (Media, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return Media{}, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return Media{}, fmt.Errorf("copy media: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Media{}, fmt.Errorf("close form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/media", nil, &buf)
	if err != nil {
		return Media{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	var out Media
	err = c.do(req, &out)
	return out, err
}

// ExplorerLink returns the block-explorer URL of a transaction hash.
func (c *Client) ExplorerLink(ctx context.Context, hash string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.get(ctx, "/api/v1/explorer/"+url.PathEscape(hash), nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Health reports whether the gateway answers its liveness check.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/healthz", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("gateway unhealthy: %q", out.Status)
	}
	return nil
}

func (f ActionFilter) query() url.Values {
	query := url.Values{}
	if len(f.Statuses) > 0 {
		query.Set("status", strings.Join(f.Statuses, ","))
	}
	if len(f.Kinds) > 0 {
		query.Set("kind", strings.Join(f.Kinds, ","))
	}
	if f.Project != "" {
		query.Set("project", f.Project)
	}
	if f.Limit > 0 {
		query.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		query.Set("offset", strconv.Itoa(f.Offset))
	}
	if f.Ascending {
		query.Set("order", "asc")
	}
	return query
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
