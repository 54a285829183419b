package action

import (
	"net/http"

	xerrors "Parry-QV/internal/errors"
)

// Kind 表示动作类型。
type Kind string

const (
	KindCreateProject Kind = "create_project"
	KindCreatePoll    Kind = "create_poll"
	KindJoinProject   Kind = "join_project"
	KindCastVote      Kind = "cast_vote"
)

// IsValidKind 检查动作类型是否受支持。
func IsValidKind(kind Kind) bool {
	switch kind {
	case KindCreateProject, KindCreatePoll, KindJoinProject, KindCastVote:
		return true
	default:
		return false
	}
}

// Status 表示动作在状态机中的位置。
type Status string

const (
	StatusIdle             Status = "idle"
	StatusValidating       Status = "validating"
	StatusSimulating       Status = "simulating"
	StatusEncoding         Status = "encoding"
	StatusRelaying         Status = "relaying"
	StatusDirectSubmitting Status = "direct_submitting"
	StatusConfirmed        Status = "confirmed"
	StatusFailed           Status = "failed"
)

// Terminal 判断状态是否为终态。
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// InFlight 判断动作是否已被领取但尚未结束。
func (s Status) InFlight() bool {
	switch s {
	case StatusValidating, StatusSimulating, StatusEncoding, StatusRelaying, StatusDirectSubmitting:
		return true
	default:
		return false
	}
}

// IsValidStatus 检查给定的状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	return status == StatusIdle || status.InFlight() || status.Terminal()
}

// Result 保存一次成功提交的结果。
type Result struct {
	Strategy    string `json:"strategy" bson:"strategy"`
	Sender      string `json:"sender" bson:"sender"`
	TxHash      string `json:"txHash" bson:"tx_hash"`
	BlockNumber uint64 `json:"blockNumber,omitempty" bson:"block_number,omitempty"`
}

// Action 描述一次排队执行的链上变更。
type Action struct {
	ID        string  `json:"id" bson:"_id"`
	Kind      Kind    `json:"kind" bson:"kind"`
	Project   string  `json:"project,omitempty" bson:"project,omitempty"`
	Params    Params  `json:"params" bson:"params"`
	Status    Status  `json:"status" bson:"status"`
	ErrorCode string  `json:"errorCode,omitempty" bson:"error_code,omitempty"`
	LastError string  `json:"lastError,omitempty" bson:"last_error,omitempty"`
	Result    *Result `json:"result,omitempty" bson:"result,omitempty"`
	CreatedAt int64   `json:"createdAt" bson:"created_at"`
	UpdatedAt int64   `json:"updatedAt" bson:"updated_at"`
}

// Request 是调用方提交动作时的输入。
type Request struct {
	ID      string `json:"id,omitempty"`
	Kind    Kind   `json:"kind"`
	Project string `json:"project,omitempty"`
	Params  Params `json:"params"`
}

const (
	CodeValidationFailed  xerrors.Code = "VALIDATION_FAILED"
	CodeActionNotFound    xerrors.Code = "ACTION_NOT_FOUND"
	CodeActionConflict    xerrors.Code = "ACTION_CONFLICT"
	CodeActionFinished    xerrors.Code = "ACTION_FINISHED"
	CodeActionPublish     xerrors.Code = "ACTION_PUBLISH_FAILED"
	CodeActionInterrupted xerrors.Code = "ACTION_INTERRUPTED"
)

var (
	// ErrActionNotFound 表示指定的动作不存在。
	ErrActionNotFound = xerrors.New(CodeActionNotFound, "action not found")
	// ErrActionConflict 表示动作在当前状态下无法执行所请求的操作。
	ErrActionConflict = xerrors.New(CodeActionConflict, "action conflict")
	// ErrActionFinished 表示动作已经处于终态。
	ErrActionFinished = xerrors.New(CodeActionFinished, "action already finished")
)

func init() {
	xerrors.Register(CodeValidationFailed, xerrors.Attributes{
		Message:    "validation failed",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeActionNotFound, xerrors.Attributes{
		Message:    "action not found",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusNotFound,
	})
	xerrors.Register(CodeActionConflict, xerrors.Attributes{
		Message:    "action conflict",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusConflict,
	})
	xerrors.Register(CodeActionFinished, xerrors.Attributes{
		Message:    "action already finished",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusConflict,
	})
	xerrors.Register(CodeActionInterrupted, xerrors.Attributes{
		Message:    "action interrupted",
		Severity:   xerrors.SeverityWarning,
		Alert:      true,
		HTTPStatus: http.StatusConflict,
	})
	xerrors.Register(CodeActionPublish, xerrors.Attributes{
		Message:    "failed to publish action",
		Severity:   xerrors.SeverityCritical,
		Retryable:  true,
		Alert:      true,
		HTTPStatus: http.StatusInternalServerError,
	})
}

func cloneAction(action *Action) *Action {
	if action == nil {
		return nil
	}
	clone := *action
	if action.Result != nil {
		result := *action.Result
		clone.Result = &result
	}
	return &clone
}
