package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/moznion/go-optional"
	"golang.org/x/sync/errgroup"
)

// DefaultFanOut bounds concurrent project info calls.
const DefaultFanOut = 8

// ReaderOption customises a Reader.
type ReaderOption func(*Reader)

// WithFanOut sets the maximum number of concurrent per-project reads.
func WithFanOut(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.fanOut = n
		}
	}
}

// WithGateway sets the media gateway base used to build media URLs.
func WithGateway(base string) ReaderOption {
	return func(r *Reader) {
		r.gateway = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// Reader composes contract reads into view records.
type Reader struct {
	bindings *Bindings
	gateway  string
	fanOut   int
}

// NewReader constructs a Reader over bindings.
func NewReader(bindings *Bindings, opts ...ReaderOption) *Reader {
	r := &Reader{bindings: bindings, fanOut: DefaultFanOut}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// MediaURL prefixes hash with the gateway base.
func (r *Reader) MediaURL(hash string) string {
	if hash == "" {
		return ""
	}
	return r.gateway + "/" + hash
}

// ListProjectAddresses enumerates project contracts from the factory. An
// empty enumeration yields EMPTY_RESULT.
func (r *Reader) ListProjectAddresses(ctx context.Context) ([]common.Address, error) {
	factory, err := r.bindings.Factory(ctx, ModeRead)
	if err != nil {
		return nil, err
	}
	values, err := factory.Call(ctx, MethodGetProjects)
	if err != nil {
		return nil, err
	}
	addrs, err := decodeAddressList(MethodGetProjects, values)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, xerrors.New(CodeEmptyResult, "No projects found")
	}
	return addrs, nil
}

// ListProjectSummaries fetches every project's info concurrently. Results
// keep the factory enumeration order; any single failure fails the batch.
func (r *Reader) ListProjectSummaries(ctx context.Context) ([]ProjectSummary, error) {
	addrs, err := r.ListProjectAddresses(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]ProjectSummary, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanOut)
	for i, addr := range addrs {
		g.Go(func() error {
			summary, err := r.projectSummary(gctx, addr)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetProjectSummary returns the summary of address if the factory lists it.
// Addresses are compared case-insensitively; None means not found.
func (r *Reader) GetProjectSummary(ctx context.Context, address string) (optional.Option[ProjectSummary], error) {
	addrs, err := r.ListProjectAddresses(ctx)
	if err != nil {
		if xerrors.HasCode(err, CodeEmptyResult) {
			return optional.None[ProjectSummary](), nil
		}
		return nil, err
	}
	for _, addr := range addrs {
		if !SameAddress(addr.Hex(), address) {
			continue
		}
		summary, err := r.projectSummary(ctx, addr)
		if err != nil {
			return nil, err
		}
		return optional.Some(summary), nil
	}
	return optional.None[ProjectSummary](), nil
}

func (r *Reader) projectSummary(ctx context.Context, addr common.Address) (ProjectSummary, error) {
	project, err := r.bindings.Project(ctx, addr, ModeRead)
	if err != nil {
		return ProjectSummary{}, err
	}
	values, err := project.Call(ctx, MethodGetProjectInfo)
	if err != nil {
		return ProjectSummary{}, err
	}
	summary, err := decodeProjectInfo(addr, values)
	if err != nil {
		return ProjectSummary{}, err
	}
	summary.MediaURL = r.MediaURL(summary.MediaHash)
	return summary, nil
}

// ListPolls returns every poll of project in contract order.
func (r *Reader) ListPolls(ctx context.Context, project common.Address) ([]Poll, error) {
	contract, err := r.bindings.Project(ctx, project, ModeRead)
	if err != nil {
		return nil, err
	}
	values, err := contract.Call(ctx, MethodGetAllPolls)
	if err != nil {
		return nil, err
	}
	polls, err := decodePollList(values)
	if err != nil {
		return nil, err
	}
	for i := range polls {
		polls[i].MediaURL = r.MediaURL(polls[i].MediaHash)
	}
	return polls, nil
}

// GetPoll fetches one poll by index.
func (r *Reader) GetPoll(ctx context.Context, project common.Address, index uint64) (Poll, error) {
	contract, err := r.bindings.Project(ctx, project, ModeRead)
	if err != nil {
		return Poll{}, err
	}
	values, err := contract.Call(ctx, MethodGetPollInfo, new(big.Int).SetUint64(index))
	if err != nil {
		return Poll{}, err
	}
	poll, err := decodePoll(MethodGetPollInfo, index, values)
	if err != nil {
		return Poll{}, err
	}
	poll.MediaURL = r.MediaURL(poll.MediaHash)
	return poll, nil
}

// GetMembership fetches wallet's user info in project.
func (r *Reader) GetMembership(ctx context.Context, project, wallet common.Address) (Membership, error) {
	contract, err := r.bindings.Project(ctx, project, ModeRead)
	if err != nil {
		return Membership{}, err
	}
	values, err := contract.Call(ctx, MethodGetUserInfo, wallet)
	if err != nil {
		return Membership{}, err
	}
	return decodeUserInfo(values)
}

// GetVoteRecord fetches wallet's vote on poll index in project.
func (r *Reader) GetVoteRecord(ctx context.Context, project common.Address, index uint64, wallet common.Address) (VoteRecord, error) {
	contract, err := r.bindings.Project(ctx, project, ModeRead)
	if err != nil {
		return VoteRecord{}, err
	}
	values, err := contract.Call(ctx, MethodGetVoteInfo, new(big.Int).SetUint64(index), wallet)
	if err != nil {
		return VoteRecord{}, err
	}
	return decodeVoteInfo(values)
}

// GetPassportScore reads wallet's score from the scoring contract.
func (r *Reader) GetPassportScore(ctx context.Context, wallet common.Address) (PassportScore, error) {
	contract, err := r.bindings.Passport(ctx)
	if err != nil {
		return PassportScore{}, err
	}
	values, err := contract.Call(ctx, MethodGetPassportScore, wallet)
	if err != nil {
		return PassportScore{}, err
	}
	raw, err := decodeScalarBig(MethodGetPassportScore, values)
	if err != nil {
		return PassportScore{}, err
	}
	return PassportScore{Raw: raw, Display: FormatScore(raw)}, nil
}

// ParseAddress validates a hex address supplied by a caller.
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid address %q", raw))
	}
	return common.HexToAddress(trimmed), nil
}
