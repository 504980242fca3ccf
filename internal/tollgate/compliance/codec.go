package compliance

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

// Relayed calls travel as a protobuf-encoded google.protobuf.Struct:
//
//	{ "method": "<method>", "args": { ... } }
//
// Addresses and amounts are strings; durations are numbers; flags are bools.

// EncodeCall serializes cmd for Registry.Relay.
func EncodeCall(cmd Command) ([]byte, error) {
	s, err := CallStruct(cmd)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// MustEncodeCall is EncodeCall for callers that construct commands in code.
func MustEncodeCall(cmd Command) []byte {
	b, err := EncodeCall(cmd)
	if err != nil {
		panic(err)
	}
	return b
}

// CallStruct returns the Struct form of cmd.
func CallStruct(cmd Command) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"method": cmd.Method(),
		"args":   cmd.args(),
	})
}

// DecodeCall parses an encoded call. Every failure wraps ErrConfiguration.
func DecodeCall(b []byte) (Command, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: decode call: %v", ErrConfiguration, err)
	}
	return CommandFromStruct(&s)
}

func CommandFromStruct(s *structpb.Struct) (Command, error) {
	fields := s.GetFields()
	method := fields["method"].GetStringValue()
	var args map[string]any
	if a := fields["args"].GetStructValue(); a != nil {
		args = a.AsMap()
	}
	return CommandFromArgs(method, args)
}

// CommandFromArgs builds a typed command from a method name and loosely
// typed arguments (as produced by JSON or Struct.AsMap).
func CommandFromArgs(method string, args map[string]any) (Command, error) {
	r := argReader{method: method, args: args}
	var cmd Command
	switch method {
	case MethodApproveTransfer:
		cmd = ApproveTransfer{From: r.address("from"), To: r.address("to"), Amount: r.amount("amount")}
	case MethodUnapproveTransfer:
		cmd = UnapproveTransfer{From: r.address("from"), To: r.address("to"), Amount: r.amount("amount")}
	case MethodConsumeApproval:
		cmd = ConsumeApproval{From: r.address("from"), To: r.address("to"), Amount: r.amount("amount")}
	case MethodSetSupplyLimit:
		cmd = SetSupplyLimit{Limit: r.amount("limit")}
	case MethodSetMaxBalance:
		cmd = SetMaxBalance{Max: r.amount("max")}
	case MethodPresetBalance:
		cmd = PresetBalance{Identity: r.address("identity"), Balance: r.amount("balance")}
	case MethodRecordBalanceDelta:
		cmd = RecordBalanceDelta{Identity: r.address("identity"), Amount: r.amount("amount"), Decrease: r.optionalBool("decrease")}
	case MethodSetTimeWindow:
		cmd = SetTimeWindow{DurationSeconds: r.uint("duration_seconds"), Limit: r.amount("limit")}
	case MethodAllowUser:
		cmd = AllowUser{Identity: r.address("identity")}
	case MethodDisallowUser:
		cmd = DisallowUser{Identity: r.address("identity")}
	case MethodSetRestriction:
		cmd = SetRestriction{Enabled: r.bool("enabled")}
	case "":
		return nil, fmt.Errorf("%w: method is required", ErrConfiguration)
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrConfiguration, method)
	}
	if r.err != nil {
		return nil, r.err
	}
	return cmd, nil
}

// argReader records the first argument error so a command can be built in
// one expression.
type argReader struct {
	method string
	args   map[string]any
	err    error
}

func (r *argReader) fail(name, format string, a ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s.%s: %s", ErrConfiguration, r.method, name, fmt.Sprintf(format, a...))
	}
}

func (r *argReader) lookup(name string) (any, bool) {
	v, ok := r.args[name]
	if !ok || v == nil {
		r.fail(name, "missing argument")
		return nil, false
	}
	return v, true
}

func (r *argReader) address(name string) common.Address {
	v, ok := r.lookup(name)
	if !ok {
		return common.Address{}
	}
	s, isString := v.(string)
	if !isString || !common.IsHexAddress(strings.TrimSpace(s)) {
		r.fail(name, "want hex address, got %v", v)
		return common.Address{}
	}
	return common.HexToAddress(strings.TrimSpace(s))
}

func (r *argReader) amount(name string) types.Amount {
	v, ok := r.lookup(name)
	if !ok {
		return types.Amount{}
	}
	a, err := AmountArg(v)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return a
}

// AmountArg converts a decoded JSON or structpb value to an Amount. Strings
// may be decimal or 0x hex; numbers must be integral and exactly
// representable.
func AmountArg(v any) (types.Amount, error) {
	switch x := v.(type) {
	case string:
		return types.ParseAmount(strings.TrimSpace(x))
	case float64:
		if x < 0 || x != math.Trunc(x) || x > 1<<53 {
			return types.Amount{}, fmt.Errorf("want non-negative integer, got %v", x)
		}
		return types.NewAmount(uint64(x)), nil
	default:
		return types.Amount{}, fmt.Errorf("want amount, got %T", v)
	}
}

func (r *argReader) uint(name string) uint64 {
	v, ok := r.lookup(name)
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case float64:
		if x < 0 || x != math.Trunc(x) || x > 1<<53 {
			r.fail(name, "want non-negative integer, got %v", x)
			return 0
		}
		return uint64(x)
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(x), 10, 64)
		if err != nil {
			r.fail(name, "want non-negative integer, got %q", x)
		}
		return n
	default:
		r.fail(name, "want integer, got %T", v)
		return 0
	}
}

func (r *argReader) bool(name string) bool {
	v, ok := r.lookup(name)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	if !isBool {
		r.fail(name, "want bool, got %T", v)
	}
	return b
}

func (r *argReader) optionalBool(name string) bool {
	if _, ok := r.args[name]; !ok {
		return false
	}
	return r.bool(name)
}
