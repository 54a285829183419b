package parryqv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testProject = "0x00000000000000000000000000000000000000aA"

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost:8080", nil); err == nil {
		t.Fatalf("expected error for url without scheme")
	}
}

func TestProjectsDecodesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/api/v1/projects" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]Project{{Address: testProject, Name: "Parks", MinScoreToJoinDisplay: "1.00"}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	projects, err := client.Projects(context.Background())
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "Parks" || projects[0].MinScoreToJoinDisplay != "1.00" {
		t.Fatalf("unexpected projects: %+v", projects)
	}
}

func TestBasePathIsPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/gateway/api/v1/projects/" + testProject + "/polls/3/votes/" + testProject
		if r.URL.Path != want {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(VoteRecord{PollIndex: 3, VotingPower: "-4", HasVoted: true})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/gateway", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	record, err := client.VoteRecord(context.Background(), testProject, 3, testProject)
	if err != nil {
		t.Fatalf("vote record: %v", err)
	}
	if record.VotingPower != "-4" || !record.HasVoted {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"code":"WALLET_UNAVAILABLE","message":"no wallet"}}`)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	_, err := client.Connect(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Message != "no wallet" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !IsCode(err, "WALLET_UNAVAILABLE") {
		t.Fatalf("expected WALLET_UNAVAILABLE code")
	}
}

func TestAPIErrorFallsBackToBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	_, err := client.Session(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "boom" || apiErr.Code != "" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestQuoteSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("votes"); got != "-3" {
			t.Fatalf("unexpected votes: %q", got)
		}
		if got := r.URL.Query().Get("tokensLeft"); got != "10" {
			t.Fatalf("unexpected tokensLeft: %q", got)
		}
		_ = json.NewEncoder(w).Encode(Quote{Votes: "-3", Cost: "9", TokensLeft: "10", Remaining: "1", Affordable: true})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	quote, err := client.Quote(context.Background(), "-3", "10")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Cost != "9" || !quote.Affordable {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestSubmitActionPostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/actions" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %s", ct)
		}
		var req ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Kind != KindCastVote || req.Params.Votes != 2 || req.Params.PollIndex != 1 {
			t.Fatalf("unexpected request body: %+v", req)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Action{ID: "a-1", Kind: req.Kind, Status: "idle"})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	action, err := client.SubmitAction(context.Background(), ActionRequest{
		Kind:    KindCastVote,
		Project: testProject,
		Params:  ActionParams{PollIndex: 1, Votes: 2},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if action.ID != "a-1" || action.Finished() {
		t.Fatalf("unexpected action: %+v", action)
	}
}

func TestListActionsEncodesFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "failed,confirmed" || q.Get("kind") != "cast_vote" {
			t.Fatalf("unexpected filter: %s", r.URL.RawQuery)
		}
		if q.Get("limit") != "5" || q.Get("offset") != "10" || q.Get("order") != "asc" {
			t.Fatalf("unexpected paging: %s", r.URL.RawQuery)
		}
		if q.Get("project") != testProject {
			t.Fatalf("unexpected project: %s", q.Get("project"))
		}
		_ = json.NewEncoder(w).Encode([]Action{{ID: "a-1"}, {ID: "a-2"}})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	list, err := client.ListActions(context.Background(), ActionFilter{
		Statuses:  []string{StatusFailed, StatusConfirmed},
		Kinds:     []string{KindCastVote},
		Project:   testProject,
		Limit:     5,
		Offset:    10,
		Ascending: true,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(list))
	}
}

func TestWaitForActionPollsUntilFinished(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "relaying"
		if calls.Add(1) >= 3 {
			status = StatusConfirmed
		}
		_ = json.NewEncoder(w).Encode(Action{
			ID:     "a-1",
			Status: status,
			Result: &ActionResult{Strategy: "relay", TxHash: "0xabc"},
		})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	action, err := client.WaitForAction(ctx, "a-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if action.Status != StatusConfirmed || action.Result == nil || action.Result.TxHash != "0xabc" {
		t.Fatalf("unexpected action: %+v", action)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", calls.Load())
	}
}

func TestWaitForActionHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Action{ID: "a-1", Status: "idle"})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	action, err := client.WaitForAction(ctx, "a-1", 10*time.Millisecond)
	if err == nil {
		t.Fatalf("expected context error")
	}
	if action.ID != "a-1" {
		t.Fatalf("expected last observed action, got %+v", action)
	}
}

func TestUploadMediaSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "png-bytes" {
			t.Fatalf("unexpected payload: %q", data)
		}
		if header.Filename != "logo.png" || header.Header.Get("Content-Type") != "image/png" {
			t.Fatalf("unexpected header: %+v", header)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Media{Hash: "QmHash", URL: "https://gw/ipfs/QmHash", Size: 9})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	media, err := client.UploadMedia(context.Background(), "logo.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if media.Hash != "QmHash" {
		t.Fatalf("unexpected media: %+v", media)
	}
}

func TestExplorerLinkAndHealth(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case "/api/v1/explorer/" + hash:
			_ = json.NewEncoder(w).Encode(map[string]string{"hash": hash, "url": "https://scan/tx/" + hash})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	link, err := client.ExplorerLink(context.Background(), hash)
	if err != nil {
		t.Fatalf("explorer: %v", err)
	}
	if link != "https://scan/tx/"+hash {
		t.Fatalf("unexpected link: %s", link)
	}
}

func TestSelectAccountSendsAddressAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/session/select" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Fatalf("missing api key header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Session{Connected: true, Address: body["address"]})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAPIKey(" secret ")
	session, err := client.SelectAccount(context.Background(), testProject)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !session.Connected || session.Address != testProject {
		t.Fatalf("unexpected session %+v", session)
	}
}
