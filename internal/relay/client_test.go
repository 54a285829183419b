package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "Parry-QV/internal/errors"
)

func TestExecuteReturnsHashVerbatim(t *testing.T) {
	var received Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/QV-execute-meta-transaction" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"hash": "0xdead"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	hash, err := client.Execute(context.Background(), FamilyProject, Request{
		Sender:          "0x1111111111111111111111111111111111111111",
		TxData:          "0xabcdef",
		ContractAddress: "0x2222222222222222222222222222222222222222",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if hash != "0xdead" {
		t.Fatalf("expected hash 0xdead, got %q", hash)
	}
	if received.TxData != "0xabcdef" || received.ContractAddress == "" {
		t.Fatalf("unexpected request body %+v", received)
	}
}

func TestExecuteFactoryOmitsContractAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/factory-execute-meta-transaction" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if _, ok := body["contractAddress"]; ok {
			t.Fatalf("factory request should not carry contractAddress: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"hash": "0xbeef"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api/", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Execute(context.Background(), FamilyFactory, Request{Sender: "0x1", TxData: "0x00"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestExecuteNon200IsSubmissionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var observedStatus int
	client, err := NewClient(srv.URL,
		WithHTTPClient(srv.Client()),
		WithObserver(func(_ Family, status int, _ time.Duration, _ error) { observedStatus = status }),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Execute(context.Background(), FamilyProject, Request{Sender: "0x1", TxData: "0x00"})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if code := xerrors.CodeOf(err); code != CodeSubmissionFailed {
		t.Fatalf("expected %s, got %s", CodeSubmissionFailed, code)
	}
	if xerrors.UserMessage(err) == "" {
		t.Fatal("expected non-empty user message")
	}
	if observedStatus != http.StatusInternalServerError {
		t.Fatalf("observer saw status %d", observedStatus)
	}
}

func TestExecuteMissingHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Execute(context.Background(), FamilyProject, Request{}); xerrors.CodeOf(err) != CodeSubmissionFailed {
		t.Fatalf("expected submission failure, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
