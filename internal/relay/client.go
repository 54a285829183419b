// Package relay talks to the meta-transaction relayer that submits and pays
// for transactions on behalf of connected users.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "Parry-QV/internal/errors"
)

// CodeSubmissionFailed is returned whenever the relayer does not answer 200
// with a transaction hash.
const CodeSubmissionFailed xerrors.Code = "RELAY_SUBMISSION_FAILED"

// DefaultHTTPTimeout bounds a single relayer round trip.
const DefaultHTTPTimeout = 30 * time.Second

func init() {
	xerrors.Register(CodeSubmissionFailed, xerrors.Attributes{
		Message:    "relayer rejected the transaction",
		Severity:   xerrors.SeverityWarning,
		Alert:      true,
		HTTPStatus: http.StatusBadGateway,
	})
}

// Family selects the relayer endpoint for an operation.
type Family string

const (
	// FamilyFactory covers factory-level operations such as project creation.
	FamilyFactory Family = "factory"
	// FamilyProject covers project-level operations: join, vote, create poll.
	FamilyProject Family = "project"
)

// Endpoint paths appended to the relayer base URL.
const (
	FactoryEndpoint = "factory-execute-meta-transaction"
	ProjectEndpoint = "QV-execute-meta-transaction"
)

// Request is the meta-transaction payload accepted by the relayer.
type Request struct {
	Sender          string `json:"sender"`
	TxData          string `json:"txData"`
	ContractAddress string `json:"contractAddress,omitempty"`
}

type response struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Observer receives the outcome of every relayer round trip.
type Observer func(family Family, status int, elapsed time.Duration, err error)

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for relayer calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithObserver registers a callback invoked after every relayer call.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// Client posts encoded calls to the relayer.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	observer   Observer
}

// NewClient constructs a relayer client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "relayer base url is required")
	}
	parsed, err := url.Parse(strings.TrimRight(trimmed, "/"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid relayer base url")
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// EndpointURL returns the absolute URL used for the family.
func (c *Client) EndpointURL(family Family) (string, error) {
	var endpoint string
	switch family {
	case FamilyFactory:
		endpoint = FactoryEndpoint
	case FamilyProject:
		endpoint = ProjectEndpoint
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown relay family %q", family))
	}
	return c.baseURL.JoinPath(endpoint).String(), nil
}

// Execute posts req to the family endpoint and returns the transaction hash
// reported by the relayer verbatim. Any status other than 200 fails with
// RELAY_SUBMISSION_FAILED.
func (c *Client) Execute(ctx context.Context, family Family, req Request) (string, error) {
	started := time.Now()
	status, hash, err := c.execute(ctx, family, req)
	if c.observer != nil {
		c.observer(family, status, time.Since(started), err)
	}
	return hash, err
}

func (c *Client) execute(ctx context.Context, family Family, req Request) (int, string, error) {
	endpoint, err := c.EndpointURL(family)
	if err != nil {
		return 0, "", err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, "", xerrors.Wrap(CodeSubmissionFailed, err, "encode relay request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", xerrors.Wrap(CodeSubmissionFailed, err, "create relay request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, "", xerrors.Wrap(CodeSubmissionFailed, err, "relayer unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", xerrors.Wrap(CodeSubmissionFailed, err, "read relay response")
	}

	var decoded response
	_ = json.Unmarshal(data, &decoded)

	if resp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("Transaction execution failed: relayer returned %d", resp.StatusCode)
		if detail := firstNonEmpty(decoded.Message, decoded.Error); detail != "" {
			message = fmt.Sprintf("%s (%s)", message, detail)
		}
		return resp.StatusCode, "", xerrors.New(CodeSubmissionFailed, message,
			xerrors.WithMetadata("status", fmt.Sprintf("%d", resp.StatusCode)),
			xerrors.WithMetadata("family", string(family)))
	}
	if strings.TrimSpace(decoded.Hash) == "" {
		return resp.StatusCode, "", xerrors.New(CodeSubmissionFailed, "relayer response did not include a transaction hash")
	}
	return resp.StatusCode, decoded.Hash, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
