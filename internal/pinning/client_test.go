package pinning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "Parry-QV/internal/errors"
)

func TestPinFileUploadsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
			t.Fatalf("missing credentials: %v", r.Header)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if string(content) != "png-bytes" || header.Filename != "cover.png" {
			t.Fatalf("unexpected file %q (%s)", content, header.Filename)
		}
		var meta Metadata
		if err := json.Unmarshal([]byte(r.FormValue("pinataMetadata")), &meta); err != nil {
			t.Fatalf("decode metadata: %v", err)
		}
		if meta.Name != "Image" || meta.KeyValues["description"] != "Image generated" {
			t.Fatalf("unexpected metadata %+v", meta)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"IpfsHash": "QmHash", "PinSize": 9})
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL, APIKey: "key", SecretKey: "secret", Gateway: "https://gw.example/ipfs/"}, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := client.PinFile(context.Background(), "cover.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("pin file: %v", err)
	}
	if res.Hash != "QmHash" || res.URL != "https://gw.example/ipfs/QmHash" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPinFileRejectsUnsupportedType(t *testing.T) {
	client, err := NewClient(Config{URL: "http://unused"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.PinFile(context.Background(), "doc.pdf", "application/pdf", strings.NewReader("x"))
	if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestPinFileServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.PinFile(context.Background(), "a.webp", "image/webp", strings.NewReader("x"))
	if code := xerrors.CodeOf(err); code != CodePinningFailed {
		t.Fatalf("expected %s, got %v", CodePinningFailed, err)
	}
}

func TestAllowed(t *testing.T) {
	for _, ct := range []string{"image/png", "image/JPEG", "image/jpg", "image/webp; charset=binary"} {
		if !Allowed(ct) {
			t.Fatalf("expected %s to be allowed", ct)
		}
	}
	if Allowed("image/gif") {
		t.Fatal("gif should be rejected")
	}
}
