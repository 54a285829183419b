package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	xerrors "Parry-QV/internal/errors"
	"Parry-QV/internal/relay"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	CodeWalletUnavailable xerrors.Code = "WALLET_UNAVAILABLE"
	CodeSenderUnavailable xerrors.Code = "SENDER_UNAVAILABLE"
	CodeUserRejected      xerrors.Code = "USER_REJECTED"
	CodeSimulationFailed  xerrors.Code = "SIMULATION_FAILED"
	CodeEncodingError     xerrors.Code = "ENCODING_ERROR"
	CodeExecutionFailed   xerrors.Code = "EXECUTION_FAILED"
	CodeEmptyResult       xerrors.Code = "EMPTY_RESULT"
	CodeUnexpectedFormat  xerrors.Code = "UNEXPECTED_FORMAT"

	// CodeRelaySubmissionFailed is owned by the relay client and re-exported
	// so callers can branch on the whole taxonomy from one package.
	CodeRelaySubmissionFailed = relay.CodeSubmissionFailed
)

// rpcCodeUserRejected is the EIP-1193 code for a declined wallet prompt.
const rpcCodeUserRejected = 4001

// rpcCodeInternal is returned by nodes when a write reverts during gas estimation.
const rpcCodeInternal = -32603

func init() {
	xerrors.Register(CodeWalletUnavailable, xerrors.Attributes{
		Message:    "no wallet is available to the gateway",
		Severity:   xerrors.SeverityWarning,
		Alert:      true,
		HTTPStatus: http.StatusServiceUnavailable,
	})
	xerrors.Register(CodeSenderUnavailable, xerrors.Attributes{
		Message:    "wallet is not connected",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusUnauthorized,
	})
	xerrors.Register(CodeUserRejected, xerrors.Attributes{
		Message:    "request rejected in wallet",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusForbidden,
	})
	xerrors.Register(CodeSimulationFailed, xerrors.Attributes{
		Message:    "transaction simulation failed",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusUnprocessableEntity,
	})
	xerrors.Register(CodeEncodingError, xerrors.Attributes{
		Message:    "call does not match the contract interface",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeExecutionFailed, xerrors.Attributes{
		Message:    "contract execution failed",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusBadGateway,
	})
	xerrors.Register(CodeEmptyResult, xerrors.Attributes{
		Message:    "no records found",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusNotFound,
	})
	xerrors.Register(CodeUnexpectedFormat, xerrors.Attributes{
		Message:    "contract returned an unexpected result",
		Severity:   xerrors.SeverityCritical,
		Alert:      true,
		HTTPStatus: http.StatusBadGateway,
	})
}

func newError(code xerrors.Code, message string, opts ...xerrors.Option) error {
	return xerrors.New(code, message, opts...)
}

// Normalize maps a raw go-ethereum, JSON-RPC or wallet failure into the
// closed error taxonomy. Errors that already carry a code pass through
// unchanged; anything unrecognised is tagged with fallback.
func Normalize(err error, fallback xerrors.Code) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "chain request cancelled or timed out")
	}
	if isUserRejection(err) {
		return xerrors.Wrap(CodeUserRejected, err, "")
	}

	var opts []xerrors.Option
	reason := RevertReason(err)
	if reason != "" {
		opts = append(opts, xerrors.WithMetadata("reason", reason))
	}
	if rpcErrorCode(err) == rpcCodeInternal {
		opts = append(opts, xerrors.WithMetadata("hint", "join the project before voting or creating polls"))
	}

	message := xerrors.AttributesOf(fallback).Message
	switch fallback {
	case CodeSimulationFailed:
		message = "Transaction simulation failed: " + firstNonEmpty(reason, err.Error())
	case CodeExecutionFailed:
		if reason != "" {
			message = fmt.Sprintf("%s: %s", message, reason)
		}
	}
	return xerrors.Wrap(fallback, err, message, opts...)
}

// RevertReason extracts a human-readable revert reason from err. It prefers
// ABI-encoded revert data and falls back to the node's message text.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(raw); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		reason := strings.TrimPrefix(msg[idx:], "execution reverted")
		reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
		if reason == "" {
			return "execution reverted"
		}
		return reason
	}
	return ""
}

func isUserRejection(err error) bool {
	if rpcErrorCode(err) == rpcCodeUserRejected {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"action_rejected", "user rejected", "user denied", "request denied"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func rpcErrorCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
