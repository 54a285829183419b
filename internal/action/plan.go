package action

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"Parry-QV/internal/chain"
	xerrors "Parry-QV/internal/errors"
)

// SecondsPerDay 用于把项目持续天数换算成链上时间戳。
const SecondsPerDay = 86400

// ChainState 抽象了准备交易时需要读取的链上状态。
type ChainState interface {
	ActiveAddress(ctx context.Context) (common.Address, error)
	LatestTimestamp(ctx context.Context) (*big.Int, error)
	GetMembership(ctx context.Context, project, wallet common.Address) (chain.Membership, error)
	GetPassportScore(ctx context.Context, wallet common.Address) (chain.PassportScore, error)
}

type chainState struct {
	bindings *chain.Bindings
	reader   *chain.Reader
}

// NewChainState 基于绑定工厂与读取器构造 ChainState。
func NewChainState(bindings *chain.Bindings, reader *chain.Reader) ChainState {
	return &chainState{bindings: bindings, reader: reader}
}

func (s *chainState) ActiveAddress(ctx context.Context) (common.Address, error) {
	return s.bindings.Resolver().ActiveAddress(ctx)
}

func (s *chainState) LatestTimestamp(ctx context.Context) (*big.Int, error) {
	return s.bindings.LatestTimestamp(ctx)
}

func (s *chainState) GetMembership(ctx context.Context, project, wallet common.Address) (chain.Membership, error) {
	return s.reader.GetMembership(ctx, project, wallet)
}

func (s *chainState) GetPassportScore(ctx context.Context, wallet common.Address) (chain.PassportScore, error) {
	return s.reader.GetPassportScore(ctx, wallet)
}

// plan 校验动作并组装合约调用，返回调用与当前发送方。
// 参数在编码前按 ABI 统一转换，类型或个数不符时返回 ENCODING_ERROR。
func plan(ctx context.Context, state ChainState, action *Action) (chain.Call, common.Address, error) {
	if err := Validate(action.Kind, action.Project, action.Params); err != nil {
		return chain.Call{}, common.Address{}, err
	}
	sender, err := state.ActiveAddress(ctx)
	if err != nil {
		return chain.Call{}, common.Address{}, err
	}
	call, err := buildCall(ctx, state, action, sender)
	if err != nil {
		return chain.Call{}, sender, err
	}
	call, err = coerceCall(call)
	if err != nil {
		return chain.Call{}, sender, err
	}
	return call, sender, nil
}

// coerceCall 把调用参数转换为 ABI 期望的类型。
func coerceCall(call chain.Call) (chain.Call, error) {
	args, err := chain.CoerceArgs(call.Kind, call.Method, call.Args)
	if err != nil {
		return chain.Call{}, err
	}
	call.Args = args
	return call, nil
}

func buildCall(ctx context.Context, state ChainState, action *Action, sender common.Address) (chain.Call, error) {
	params := action.Params

	switch action.Kind {
	case KindCreateProject:
		now, err := state.LatestTimestamp(ctx)
		if err != nil {
			return chain.Call{}, err
		}
		return chain.Call{
			Kind:   chain.KindFactory,
			Method: chain.MethodCreateProject,
			Args: []any{
				params.Name,
				params.Description,
				params.MediaHash,
				new(big.Int).SetUint64(params.TokensPerUser),
				new(big.Int).SetUint64(params.TokensPerVerifiedUser),
				chain.ScaleScore(params.MinScoreToJoin),
				chain.ScaleScore(params.MinScoreToVerify),
				EndTime(now, params.EndDays),
			},
		}, nil

	case KindCreatePoll:
		return chain.Call{
			Kind:     chain.KindProject,
			Contract: common.HexToAddress(action.Project),
			Method:   chain.MethodCreatePoll,
			Args:     []any{params.Name, params.Description, params.MediaHash},
		}, nil

	case KindJoinProject:
		score, err := state.GetPassportScore(ctx, sender)
		if err != nil {
			return chain.Call{}, err
		}
		if score.Raw == nil || score.Raw.Sign() <= 0 {
			return chain.Call{}, xerrors.New(CodeValidationFailed,
				"a passport score is required to join a project",
				xerrors.WithMetadata("sender", sender.Hex()))
		}
		return chain.Call{
			Kind:     chain.KindProject,
			Contract: common.HexToAddress(action.Project),
			Method:   chain.MethodJoinProject,
		}, nil

	case KindCastVote:
		project := common.HexToAddress(action.Project)
		if params.Votes > 1 {
			member, err := state.GetMembership(ctx, project, sender)
			if err != nil {
				return chain.Call{}, err
			}
			if !member.IsVerified {
				return chain.Call{}, xerrors.New(CodeValidationFailed,
					"unverified members can cast at most 1 vote",
					xerrors.WithMetadata("sender", sender.Hex()))
			}
		}
		return chain.Call{
			Kind:     chain.KindProject,
			Contract: project,
			Method:   chain.MethodCastVote,
			Args: []any{
				new(big.Int).SetUint64(params.PollIndex),
				big.NewInt(params.Votes),
			},
		}, nil
	}
	return chain.Call{}, xerrors.New(CodeValidationFailed, "不支持的动作类型")
}

// EndTime 返回 now 之后 days 天的时间戳（秒）。
func EndTime(now *big.Int, days uint64) *big.Int {
	end := new(big.Int).SetUint64(days)
	end.Mul(end, big.NewInt(SecondsPerDay))
	if now != nil {
		end.Add(end, now)
	}
	return end
}
