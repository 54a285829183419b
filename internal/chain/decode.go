package chain

import (
	"fmt"
	"math/big"
	"reflect"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Positional layouts of the tuples returned by the project contract.
const (
	projectInfoFields = 8
	pollFields        = 7
	userInfoFields    = 6
	voteInfoFields    = 4
)

func decodeProjectInfo(address common.Address, values []any) (ProjectSummary, error) {
	d := decoder{method: MethodGetProjectInfo, values: values}
	d.expect(projectInfoFields)
	summary := ProjectSummary{
		Address:               address,
		Name:                  d.str(0),
		Description:           d.str(1),
		MediaHash:             d.str(2),
		TokensPerUser:         d.big(3),
		TokensPerVerifiedUser: d.big(4),
		MinScoreToJoin:        d.big(5),
		MinScoreToVerify:      d.big(6),
		EndTime:               d.big(7),
	}
	return summary, d.err
}

// decodePoll maps (name, description, ipfsHash, creator, isActive,
// totalParticipants, totalVotes) into a Poll.
func decodePoll(method string, index uint64, values []any) (Poll, error) {
	d := decoder{method: method, values: values}
	d.expect(pollFields)
	poll := Poll{
		Index:             index,
		Name:              d.str(0),
		Description:       d.str(1),
		MediaHash:         d.str(2),
		Creator:           d.addr(3),
		IsActive:          d.boolean(4),
		TotalParticipants: d.big(5),
		TotalVotes:        d.big(6),
	}
	return poll, d.err
}

// decodePollList flattens the tuple[] returned by getAllPolls. Each element
// is an anonymous struct generated by the ABI decoder; fields are read by
// position so the mapping matches getPollInfo exactly.
func decodePollList(values []any) ([]Poll, error) {
	if len(values) != 1 {
		return nil, unexpected(MethodGetAllPolls, fmt.Sprintf("expected 1 output, got %d", len(values)))
	}
	list := reflect.ValueOf(values[0])
	if list.Kind() != reflect.Slice {
		return nil, unexpected(MethodGetAllPolls, fmt.Sprintf("expected slice, got %T", values[0]))
	}
	polls := make([]Poll, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		elem := list.Index(i)
		if elem.Kind() != reflect.Struct {
			return nil, unexpected(MethodGetAllPolls, fmt.Sprintf("element %d is %s", i, elem.Kind()))
		}
		fields := make([]any, elem.NumField())
		for f := 0; f < elem.NumField(); f++ {
			fields[f] = elem.Field(f).Interface()
		}
		poll, err := decodePoll(MethodGetAllPolls, uint64(i), fields)
		if err != nil {
			return nil, err
		}
		polls = append(polls, poll)
	}
	return polls, nil
}

func decodeUserInfo(values []any) (Membership, error) {
	d := decoder{method: MethodGetUserInfo, values: values}
	d.expect(userInfoFields)
	m := Membership{
		IsRegistered:   d.boolean(0),
		IsVerified:     d.boolean(1),
		TokensLeft:     d.big(2),
		LastScoreCheck: d.big(3),
		PassportScore:  d.big(4),
		TotalVotesCast: d.big(5),
	}
	return m, d.err
}

func decodeVoteInfo(values []any) (VoteRecord, error) {
	d := decoder{method: MethodGetVoteInfo, values: values}
	d.expect(voteInfoFields)
	v := VoteRecord{
		VotingPower: d.big(0),
		HasVoted:    d.boolean(1),
		IsVerified:  d.boolean(2),
		Timestamp:   d.big(3),
	}
	return v, d.err
}

func decodeAddressList(method string, values []any) ([]common.Address, error) {
	if len(values) != 1 {
		return nil, unexpected(method, fmt.Sprintf("expected 1 output, got %d", len(values)))
	}
	addrs, ok := values[0].([]common.Address)
	if !ok {
		return nil, unexpected(method, fmt.Sprintf("expected address list, got %T", values[0]))
	}
	return addrs, nil
}

func decodeScalarBig(method string, values []any) (*big.Int, error) {
	d := decoder{method: method, values: values}
	d.expect(1)
	v := d.big(0)
	return v, d.err
}

// decoder reads positional outputs and remembers the first mismatch.
type decoder struct {
	method string
	values []any
	err    error
}

func (d *decoder) expect(n int) {
	if d.err == nil && len(d.values) != n {
		d.err = unexpected(d.method, fmt.Sprintf("expected %d fields, got %d", n, len(d.values)))
	}
}

func (d *decoder) at(i int) (any, bool) {
	if d.err != nil || i >= len(d.values) {
		return nil, false
	}
	return d.values[i], true
}

func (d *decoder) str(i int) string {
	raw, ok := d.at(i)
	if !ok {
		return ""
	}
	v, ok := raw.(string)
	if !ok {
		d.fail(i, "string", raw)
	}
	return v
}

func (d *decoder) boolean(i int) bool {
	raw, ok := d.at(i)
	if !ok {
		return false
	}
	v, ok := raw.(bool)
	if !ok {
		d.fail(i, "bool", raw)
	}
	return v
}

func (d *decoder) addr(i int) common.Address {
	raw, ok := d.at(i)
	if !ok {
		return common.Address{}
	}
	v, ok := raw.(common.Address)
	if !ok {
		d.fail(i, "address", raw)
	}
	return v
}

func (d *decoder) big(i int) *big.Int {
	raw, ok := d.at(i)
	if !ok {
		return nil
	}
	v, ok := raw.(*big.Int)
	if !ok || v == nil {
		d.fail(i, "integer", raw)
		return nil
	}
	return v
}

func (d *decoder) fail(i int, want string, got any) {
	if d.err == nil {
		d.err = unexpected(d.method, fmt.Sprintf("field %d: expected %s, got %T", i, want, got))
	}
}

func unexpected(method, detail string) error {
	return xerrors.New(CodeUnexpectedFormat, fmt.Sprintf("%s: %s", method, detail))
}
