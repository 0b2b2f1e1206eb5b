package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	proposalengine "fangov/contexts/governance/proposal-engine"
	governancehttp "fangov/contexts/governance/proposal-engine/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func newTestServer() (*Server, proposalengine.Module) {
	gin.SetMode(gin.TestMode)
	module := proposalengine.NewInMemoryModule(nil, proposalengine.SchedulerOptions{}, nil)
	return New(module, Options{}, nil), module
}

func doJSON(t *testing.T, server *Server, method string, path string, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return out
}

func createProposal(t *testing.T, server *Server, options ...string) governancehttp.ProposalResponse {
	t.Helper()
	req := governancehttp.CreateProposalRequest{
		OrganizationID: "org-1",
		Title:          "Sponsor the youth academy",
	}
	for _, text := range options {
		req.Options = append(req.Options, governancehttp.OptionRequest{Text: text})
	}
	rr := doJSON(t, server, http.MethodPost, "/v1/proposals", "creator-1", req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	return decode[governancehttp.ProposalResponse](t, rr)
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer()
	rr := doJSON(t, server, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestSwaggerDocumentListsGovernanceRoutes(t *testing.T) {
	server, _ := newTestServer()
	rr := doJSON(t, server, http.MethodGet, "/swagger/doc.json", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("swagger document is not JSON: %v", err)
	}
	if doc.Info.Title != "Fan governance API" {
		t.Fatalf("unexpected title %q", doc.Info.Title)
	}
	for path, method := range map[string]string{
		"/v1/proposals":                                   "post",
		"/v1/proposals/{proposal_id}/votes":               "post",
		"/v1/proposals/{proposal_id}/results":             "get",
		"/v1/proposals/{proposal_id}/options/{option_id}": "delete",
	} {
		if _, ok := doc.Paths[path][method]; !ok {
			t.Fatalf("missing %s %s in swagger document", method, path)
		}
	}
}

func TestCreateProposalRequiresUser(t *testing.T) {
	server, _ := newTestServer()
	rr := doJSON(t, server, http.MethodPost, "/v1/proposals", "", governancehttp.CreateProposalRequest{
		OrganizationID: "org-1",
		Title:          "Untitled",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "missing_user") {
		t.Fatalf("expected missing_user code, got %s", rr.Body.String())
	}
}

func TestCreateProposalRejectsMalformedJSON(t *testing.T) {
	server, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/proposals", strings.NewReader("{"))
	req.Header.Set("X-User-Id", "creator-1")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateProposalRejectsBadQuorum(t *testing.T) {
	server, _ := newTestServer()
	notDecimal := "lots"
	rr := doJSON(t, server, http.MethodPost, "/v1/proposals", "creator-1", governancehttp.CreateProposalRequest{
		OrganizationID:    "org-1",
		Title:             "Quorum",
		QuorumRequirement: &notDecimal,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}

	outOfRange := "150"
	rr = doJSON(t, server, http.MethodPost, "/v1/proposals", "creator-1", governancehttp.CreateProposalRequest{
		OrganizationID:    "org-1",
		Title:             "Quorum",
		QuorumRequirement: &outOfRange,
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	body := decode[governancehttp.ErrorResponse](t, rr)
	if body.Message != "Quorum requirement must be between 0 and 100" {
		t.Fatalf("unexpected message %q", body.Message)
	}

	tooPrecise := "33.33333"
	rr = doJSON(t, server, http.MethodPost, "/v1/proposals", "creator-1", governancehttp.CreateProposalRequest{
		OrganizationID:    "org-1",
		Title:             "Quorum",
		QuorumRequirement: &tooPrecise,
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a five-place quorum, got %d body=%s", rr.Code, rr.Body.String())
	}
	body = decode[governancehttp.ErrorResponse](t, rr)
	if body.Message != "Quorum requirement must have at most 4 decimal places" {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestGetUnknownProposalReturnsNotFound(t *testing.T) {
	server, _ := newTestServer()
	rr := doJSON(t, server, http.MethodGet, "/v1/proposals/missing", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestOpenWithSingleOptionIsRejected(t *testing.T) {
	server, _ := newTestServer()
	proposal := createProposal(t, server, "Yes")

	rr := doJSON(t, server, http.MethodPost, "/v1/proposals/"+proposal.ProposalID+"/open", "creator-1", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	body := decode[governancehttp.ErrorResponse](t, rr)
	if body.Message != "Proposal must have at least two options" {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestDraftResultsAreHidden(t *testing.T) {
	server, _ := newTestServer()
	proposal := createProposal(t, server, "Yes", "No")

	rr := doJSON(t, server, http.MethodGet, "/v1/proposals/"+proposal.ProposalID+"/results", "", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDeleteOptionInDraft(t *testing.T) {
	server, _ := newTestServer()
	proposal := createProposal(t, server, "Yes", "No", "Abstain")

	path := "/v1/proposals/" + proposal.ProposalID + "/options/" + proposal.Options[2].OptionID
	rr := doJSON(t, server, http.MethodDelete, path, "creator-1", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodDelete, path, "creator-1", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/proposals/"+proposal.ProposalID, "", nil)
	got := decode[governancehttp.ProposalResponse](t, rr)
	if len(got.Options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(got.Options))
	}
}

func TestProposalLifecycleFlow(t *testing.T) {
	server, module := newTestServer()
	module.Store.SetVotingPower("org-1", "fan-a", decimal.NewFromInt(60))
	module.Store.SetVotingPower("org-1", "fan-b", decimal.NewFromInt(30))
	module.Store.SetVotingPower("org-1", "fan-c", decimal.NewFromInt(10))

	proposal := createProposal(t, server, "Yes", "No")
	yes := proposal.Options[0].OptionID
	no := proposal.Options[1].OptionID
	base := "/v1/proposals/" + proposal.ProposalID

	rr := doJSON(t, server, http.MethodPost, base+"/votes", "fan-a", governancehttp.CastVoteRequest{OptionID: yes})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 voting on draft, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, base+"/open", "creator-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	opened := decode[governancehttp.TransitionResponse](t, rr)
	if opened.Proposal.Status != "Open" {
		t.Fatalf("expected Open status, got %q", opened.Proposal.Status)
	}
	if opened.Proposal.EligibleVotingPowerSnapshot == nil || *opened.Proposal.EligibleVotingPowerSnapshot != "100" {
		t.Fatalf("expected eligible snapshot 100, got %v", opened.Proposal.EligibleVotingPowerSnapshot)
	}

	rr = doJSON(t, server, http.MethodPost, base+"/votes", "fan-a", governancehttp.CastVoteRequest{OptionID: yes})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	vote := decode[governancehttp.VoteResponse](t, rr)
	if vote.VotingPower != "60" {
		t.Fatalf("expected voting power 60, got %s", vote.VotingPower)
	}

	rr = doJSON(t, server, http.MethodPost, base+"/votes", "fan-a", governancehttp.CastVoteRequest{OptionID: no})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on second vote, got %d body=%s", rr.Code, rr.Body.String())
	}
	if msg := decode[governancehttp.ErrorResponse](t, rr).Message; msg != "You have already voted on this proposal" {
		t.Fatalf("unexpected message %q", msg)
	}

	rr = doJSON(t, server, http.MethodPost, base+"/votes", "outsider", governancehttp.CastVoteRequest{OptionID: no})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for zero power, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, base+"/votes", "fan-b", governancehttp.CastVoteRequest{OptionID: "nope"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown option, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, base+"/votes", "fan-b", governancehttp.CastVoteRequest{OptionID: no})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, base+"/results", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 live results, got %d body=%s", rr.Code, rr.Body.String())
	}
	live := decode[governancehttp.ResultsResponse](t, rr)
	if live.TotalVotingPower != "90" || live.TotalVotes != 2 {
		t.Fatalf("unexpected live totals %+v", live)
	}

	rr = doJSON(t, server, http.MethodPost, base+"/finalize", "creator-1", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 finalizing open proposal, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, base+"/close", "creator-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	closed := decode[governancehttp.TransitionResponse](t, rr)
	if closed.Results == nil {
		t.Fatal("expected results on close")
	}
	if closed.Results.WinningOptionID != yes {
		t.Fatalf("expected winner %s, got %s", yes, closed.Results.WinningOptionID)
	}
	if !closed.Results.QuorumMet {
		t.Fatal("expected quorum met without requirement")
	}

	rr = doJSON(t, server, http.MethodPost, base+"/votes", "fan-c", governancehttp.CastVoteRequest{OptionID: yes})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 voting on closed, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, base+"/finalize", "creator-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	finalized := decode[governancehttp.TransitionResponse](t, rr)
	if finalized.Proposal.Status != "Finalized" {
		t.Fatalf("expected Finalized, got %q", finalized.Proposal.Status)
	}
	if finalized.Results == nil || finalized.Results.ResultsHash != closed.Results.ResultsHash {
		t.Fatal("expected finalize to reproduce the closing results hash")
	}

	rr = doJSON(t, server, http.MethodGet, base+"/results", "", nil)
	stored := decode[governancehttp.ResultsResponse](t, rr)
	if stored.ResultsHash != finalized.Results.ResultsHash {
		t.Fatalf("expected stored hash %s, got %s", finalized.Results.ResultsHash, stored.ResultsHash)
	}
}
