package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

func TestListProjectSummariesPreservesEnumerationOrder(t *testing.T) {
	backend := newFakeBackend()
	var addrs []common.Address
	for i := 0; i < 5; i++ {
		addr := common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		addrs = append(addrs, addr)
		backend.set(addr, MethodGetProjectInfo, projectInfo(fmt.Sprintf("p%d", i))...)
		// earlier projects answer later
		backend.delays[addr] = time.Duration(5-i) * 15 * time.Millisecond
	}
	backend.set(testFactory, MethodGetProjects, addrs)

	reader := newTestReader(backend, WithFanOut(5))
	summaries, err := reader.ListProjectSummaries(context.Background())
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != len(addrs) {
		t.Fatalf("expected %d summaries, got %d", len(addrs), len(summaries))
	}
	for i, summary := range summaries {
		if summary.Address != addrs[i] {
			t.Fatalf("summary %d: expected %s, got %s", i, addrs[i].Hex(), summary.Address.Hex())
		}
		if summary.Name != fmt.Sprintf("p%d", i) {
			t.Fatalf("summary %d: unexpected name %q", i, summary.Name)
		}
	}
	if got := summaries[0].MediaURL; got != "https://ipfs.example/ipfs/Qmp0" {
		t.Fatalf("unexpected media url %q", got)
	}
	if summaries[0].MinScoreToVerify.Int64() != 75000 {
		t.Fatalf("unexpected min score %s", summaries[0].MinScoreToVerify)
	}
}

func TestListProjectSummariesFailsWholeBatch(t *testing.T) {
	backend := newFakeBackend()
	good := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bad := common.HexToAddress("0x0000000000000000000000000000000000000a02")
	backend.set(testFactory, MethodGetProjects, []common.Address{good, bad})
	backend.set(good, MethodGetProjectInfo, projectInfo("good")...)
	backend.errs[bad] = errors.New("connection reset")

	_, err := newTestReader(backend).ListProjectSummaries(context.Background())
	if err == nil {
		t.Fatal("expected batch failure")
	}
	if code := xerrors.CodeOf(err); code != CodeExecutionFailed {
		t.Fatalf("expected %s, got %s", CodeExecutionFailed, code)
	}
}

func TestListProjectAddressesEmpty(t *testing.T) {
	backend := newFakeBackend()
	backend.set(testFactory, MethodGetProjects, []common.Address{})

	_, err := newTestReader(backend).ListProjectAddresses(context.Background())
	if code := xerrors.CodeOf(err); code != CodeEmptyResult {
		t.Fatalf("expected %s, got %v", CodeEmptyResult, err)
	}
}

func TestGetProjectSummaryIsCaseInsensitive(t *testing.T) {
	backend := newFakeBackend()
	addr := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	other := common.HexToAddress("0x0000000000000000000000000000000000000b02")
	backend.set(testFactory, MethodGetProjects, []common.Address{other, addr})
	backend.set(addr, MethodGetProjectInfo, projectInfo("target")...)
	backend.set(other, MethodGetProjectInfo, projectInfo("other")...)
	reader := newTestReader(backend)

	for _, query := range []string{strings.ToLower(addr.Hex()), strings.ToUpper("0x" + addr.Hex()[2:])} {
		found, err := reader.GetProjectSummary(context.Background(), query)
		if err != nil {
			t.Fatalf("get summary %s: %v", query, err)
		}
		if found.IsNone() {
			t.Fatalf("expected %s to be found", query)
		}
		if found.Unwrap().Name != "target" {
			t.Fatalf("unexpected project %q", found.Unwrap().Name)
		}
	}

	missing, err := reader.GetProjectSummary(context.Background(), "0x0000000000000000000000000000000000000c03")
	if err != nil {
		t.Fatalf("get missing summary: %v", err)
	}
	if missing.IsSome() {
		t.Fatal("expected not found for address outside the enumeration")
	}
}

func TestGetProjectSummaryEmptyEnumerationIsNotFound(t *testing.T) {
	backend := newFakeBackend()
	backend.set(testFactory, MethodGetProjects, []common.Address{})

	found, err := newTestReader(backend).GetProjectSummary(context.Background(), "0x0000000000000000000000000000000000000c03")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if found.IsSome() {
		t.Fatal("expected not found")
	}
}

func TestListPollsDecodesPositionalTuples(t *testing.T) {
	backend := newFakeBackend()
	project := common.HexToAddress("0x0000000000000000000000000000000000000d01")
	creator := common.HexToAddress("0x0000000000000000000000000000000000000e01")
	backend.set(project, MethodGetAllPolls, []pollTuple{
		{Name: "first", Description: "d1", IpfsHash: "QmA", Creator: creator, IsActive: true, TotalParticipants: big.NewInt(3), TotalVotes: big.NewInt(14)},
		{Name: "second", Description: "d2", IpfsHash: "QmB", Creator: creator, IsActive: false, TotalParticipants: big.NewInt(1), TotalVotes: big.NewInt(2)},
	})

	polls, err := newTestReader(backend).ListPolls(context.Background(), project)
	if err != nil {
		t.Fatalf("list polls: %v", err)
	}
	if len(polls) != 2 {
		t.Fatalf("expected 2 polls, got %d", len(polls))
	}
	first := polls[0]
	if first.Index != 0 || first.Name != "first" || !first.IsActive || first.Creator != creator {
		t.Fatalf("unexpected first poll %+v", first)
	}
	if first.TotalParticipants.Int64() != 3 || first.TotalVotes.Int64() != 14 {
		t.Fatalf("participants/votes swapped: %+v", first)
	}
	if polls[1].Index != 1 || polls[1].MediaURL != "https://ipfs.example/ipfs/QmB" {
		t.Fatalf("unexpected second poll %+v", polls[1])
	}
}

func TestGetPollMatchesListLayout(t *testing.T) {
	backend := newFakeBackend()
	project := common.HexToAddress("0x0000000000000000000000000000000000000d02")
	creator := common.HexToAddress("0x0000000000000000000000000000000000000e02")
	backend.set(project, MethodGetPollInfo, "poll", "desc", "QmP", creator, true, big.NewInt(7), big.NewInt(30))

	poll, err := newTestReader(backend).GetPoll(context.Background(), project, 4)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if poll.Index != 4 || poll.TotalParticipants.Int64() != 7 || poll.TotalVotes.Int64() != 30 {
		t.Fatalf("unexpected poll %+v", poll)
	}
}

func TestMembershipVoteAndPassport(t *testing.T) {
	backend := newFakeBackend()
	project := common.HexToAddress("0x0000000000000000000000000000000000000d03")
	wallet := common.HexToAddress("0x0000000000000000000000000000000000000f01")
	backend.set(project, MethodGetUserInfo, true, false, big.NewInt(91), big.NewInt(1_700_000_100), big.NewInt(75000), big.NewInt(3))
	backend.set(project, MethodGetVoteInfo, big.NewInt(-3), true, false, big.NewInt(1_700_000_200))
	backend.set(testPassport, MethodGetPassportScore, big.NewInt(75000))
	reader := newTestReader(backend)
	ctx := context.Background()

	member, err := reader.GetMembership(ctx, project, wallet)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if !member.IsRegistered || member.IsVerified || member.TokensLeft.Int64() != 91 || member.TotalVotesCast.Int64() != 3 {
		t.Fatalf("unexpected membership %+v", member)
	}

	vote, err := reader.GetVoteRecord(ctx, project, 0, wallet)
	if err != nil {
		t.Fatalf("get vote: %v", err)
	}
	if vote.VotingPower.Int64() != -3 || !vote.HasVoted {
		t.Fatalf("unexpected vote %+v", vote)
	}

	score, err := reader.GetPassportScore(ctx, wallet)
	if err != nil {
		t.Fatalf("get passport score: %v", err)
	}
	if score.Display != "7.50" {
		t.Fatalf("expected display 7.50, got %s", score.Display)
	}
}

func TestCallWithoutDataIsUnexpectedFormat(t *testing.T) {
	backend := newFakeBackend()
	project := common.HexToAddress("0x0000000000000000000000000000000000000d04")

	_, err := newTestReader(backend).GetMembership(context.Background(), project, common.Address{})
	if code := xerrors.CodeOf(err); code != CodeUnexpectedFormat {
		t.Fatalf("expected %s, got %v", CodeUnexpectedFormat, err)
	}
}

func TestDecoderRejectsWrongShape(t *testing.T) {
	if _, err := decodeUserInfo([]any{true, false}); xerrors.CodeOf(err) != CodeUnexpectedFormat {
		t.Fatalf("expected unexpected format for short tuple, got %v", err)
	}
	_, err := decodeVoteInfo([]any{"x", true, false, big.NewInt(1)})
	if xerrors.CodeOf(err) != CodeUnexpectedFormat {
		t.Fatalf("expected unexpected format for wrong type, got %v", err)
	}
}
