// Package pinning uploads media to a Pinata-compatible pinning service and
// builds gateway URLs for the returned content hashes.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	xerrors "Parry-QV/internal/errors"
)

// CodePinningFailed tags every upload failure.
const CodePinningFailed xerrors.Code = "PINNING_FAILED"

// DefaultHTTPTimeout bounds one upload.
const DefaultHTTPTimeout = 60 * time.Second

// MaxUploadBytes caps the accepted media size.
const MaxUploadBytes = 10 << 20

func init() {
	xerrors.Register(CodePinningFailed, xerrors.Attributes{
		Message:    "IPFS upload failed",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusBadGateway,
	})
}

var allowedTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpg":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// Allowed reports whether contentType is an accepted image type.
func Allowed(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	_, ok := allowedTypes[mediaType]
	return ok
}

// Config holds the pinning endpoint and credentials.
type Config struct {
	URL       string
	APIKey    string
	SecretKey string
	Gateway   string
}

// Metadata is sent alongside the file as pinataMetadata.
type Metadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

// Result describes a pinned file.
type Result struct {
	Hash string `json:"hash"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Client uploads files to the pinning service.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient validates cfg and returns a client. A nil httpClient gets a
// default with DefaultHTTPTimeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "pinning url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	cfg.Gateway = strings.TrimRight(strings.TrimSpace(cfg.Gateway), "/")
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// GatewayURL prefixes hash with the configured gateway base.
func (c *Client) GatewayURL(hash string) string {
	if hash == "" {
		return ""
	}
	return c.cfg.Gateway + "/" + hash
}

// PinFile uploads body as a multipart file together with its metadata and
// returns the content hash reported by the service.
func (c *Client) PinFile(ctx context.Context, filename, contentType string, body io.Reader) (Result, error) {
	if !Allowed(contentType) {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("unsupported media type %q: expected png, jpg, jpeg or webp", contentType))
	}
	if strings.TrimSpace(filename) == "" {
		filename = "image"
	}

	payload, boundary, err := buildMultipart(filename, contentType, body, Metadata{
		Name:      "Image",
		KeyValues: map[string]string{"description": "Image generated"},
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, payload)
	if err != nil {
		return Result{}, xerrors.Wrap(CodePinningFailed, err, "create upload request")
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("pinata_api_key", c.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, xerrors.Wrap(CodePinningFailed, err, "IPFS upload failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, xerrors.Wrap(CodePinningFailed, err, "read upload response")
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, xerrors.New(CodePinningFailed,
			fmt.Sprintf("IPFS upload failed: service returned %d", resp.StatusCode))
	}
	var decoded pinResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Result{}, xerrors.Wrap(CodePinningFailed, err, "decode upload response")
	}
	if decoded.IpfsHash == "" {
		return Result{}, xerrors.New(CodePinningFailed, "IPFS upload failed: no hash returned")
	}
	return Result{Hash: decoded.IpfsHash, URL: c.GatewayURL(decoded.IpfsHash), Size: decoded.PinSize}, nil
}

func buildMultipart(filename, contentType string, body io.Reader, meta Metadata) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", xerrors.Wrap(CodePinningFailed, err, "create file part")
	}
	n, err := io.Copy(part, io.LimitReader(body, MaxUploadBytes+1))
	if err != nil {
		return nil, "", xerrors.Wrap(CodePinningFailed, err, "read media")
	}
	if n > MaxUploadBytes {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, "media exceeds the upload limit")
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", xerrors.Wrap(CodePinningFailed, err, "encode metadata")
	}
	if err := writer.WriteField("pinataMetadata", string(metaJSON)); err != nil {
		return nil, "", xerrors.Wrap(CodePinningFailed, err, "write metadata")
	}
	if err := writer.Close(); err != nil {
		return nil, "", xerrors.Wrap(CodePinningFailed, err, "close multipart body")
	}
	return buf, writer.Boundary(), nil
}
