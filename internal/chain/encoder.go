package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EncodeCall ABI-encodes fn(args...) for the contract kind without any
// network access. A name, arity or type mismatch yields ENCODING_ERROR.
func EncodeCall(kind ContractKind, fn string, args ...any) ([]byte, error) {
	parsed, err := ABIFor(kind)
	if err != nil {
		return nil, err
	}
	if _, ok := parsed.Methods[fn]; !ok {
		return nil, xerrors.New(CodeEncodingError, fmt.Sprintf("method %s not found in %s abi", fn, kind))
	}
	data, err := parsed.Pack(fn, args...)
	if err != nil {
		return nil, xerrors.Wrap(CodeEncodingError, err, fmt.Sprintf("encode %s", fn))
	}
	return data, nil
}

// CoerceArgs converts loosely typed arguments (as decoded from JSON) into
// the Go types the ABI expects for fn. Integers accept JSON numbers,
// json.Number and decimal or 0x-prefixed strings.
func CoerceArgs(kind ContractKind, fn string, raw []any) ([]any, error) {
	parsed, err := ABIFor(kind)
	if err != nil {
		return nil, err
	}
	method, ok := parsed.Methods[fn]
	if !ok {
		return nil, xerrors.New(CodeEncodingError, fmt.Sprintf("method %s not found in %s abi", fn, kind))
	}
	if len(raw) != len(method.Inputs) {
		return nil, xerrors.New(CodeEncodingError,
			fmt.Sprintf("%s expects %d arguments, got %d", fn, len(method.Inputs), len(raw)))
	}
	out := make([]any, len(raw))
	for i, input := range method.Inputs {
		v, err := coerce(input.Type, raw[i])
		if err != nil {
			return nil, xerrors.Wrap(CodeEncodingError, err, fmt.Sprintf("%s argument %d (%s)", fn, i, input.Name))
		}
		out[i] = v
	}
	return out, nil
}

func coerce(t abi.Type, value any) (any, error) {
	switch t.T {
	case abi.UintTy, abi.IntTy:
		if t.Size != 256 {
			return nil, fmt.Errorf("unsupported integer width %d", t.Size)
		}
		n, err := toBigInt(value)
		if err != nil {
			return nil, err
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for unsigned argument", n)
		}
		return n, nil
	case abi.AddressTy:
		switch v := value.(type) {
		case common.Address:
			return v, nil
		case string:
			if !common.IsHexAddress(v) {
				return nil, fmt.Errorf("invalid address %q", v)
			}
			return common.HexToAddress(v), nil
		}
	case abi.StringTy:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case abi.BoolTy:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	default:
		return nil, fmt.Errorf("unsupported abi type %s", t.String())
	}
	return nil, fmt.Errorf("cannot use %T as %s", value, t.String())
}

func toBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("non-integer value %v", v)
		}
		return big.NewInt(int64(v)), nil
	case json.Number:
		return parseBigString(v.String())
	case string:
		return parseBigString(v)
	}
	return nil, fmt.Errorf("cannot use %T as integer", value)
}

func parseBigString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		base = 16
		digits = digits[2:]
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if neg {
		n.Neg(n)
	}
	return n, nil
}
