package contracts

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var bigIntType = reflect.TypeOf(&big.Int{})

// CoerceArgs converts JSON values to the Go types args expects, in order.
func CoerceArgs(args abi.Arguments, values []any) ([]any, error) {
	if len(values) != len(args) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(args), len(values))
	}
	out := make([]any, len(values))
	for i, arg := range args {
		v, err := coerce(arg.Type, values[i])
		if err != nil {
			name := arg.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, arg.Type.String(), err)
		}
		out[i] = v.Interface()
	}
	return out, nil
}

func coerce(t abi.Type, v any) (reflect.Value, error) {
	switch t.T {
	case abi.AddressTy:
		s, ok := v.(string)
		if !ok || !common.IsHexAddress(s) {
			return reflect.Value{}, fmt.Errorf("invalid address %v", v)
		}
		return reflect.ValueOf(common.HexToAddress(s)), nil

	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return reflect.ValueOf(b), nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("invalid bool %q", b)
			}
			return reflect.ValueOf(parsed), nil
		}
		return reflect.Value{}, fmt.Errorf("invalid bool %v", v)

	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected string, got %T", v)
		}
		return reflect.ValueOf(s), nil

	case abi.BytesTy:
		b, err := hexBytes(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil

	case abi.FixedBytesTy:
		b, err := hexBytes(v)
		if err != nil {
			return reflect.Value{}, err
		}
		if len(b) != t.Size {
			return reflect.Value{}, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr, nil

	case abi.IntTy, abi.UintTy:
		return coerceInt(t, v)

	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected array, got %T", v)
		}
		var out reflect.Value
		if t.T == abi.ArrayTy {
			if len(items) != t.Size {
				return reflect.Value{}, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
			}
			out = reflect.New(t.GetType()).Elem()
		} else {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		}
		for i, item := range items {
			ev, err := coerce(*t.Elem, item)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case abi.TupleTy:
		out := reflect.New(t.GetType()).Elem()
		for i, elem := range t.TupleElems {
			var raw any
			switch tv := v.(type) {
			case []any:
				if len(tv) != len(t.TupleElems) {
					return reflect.Value{}, fmt.Errorf("expected %d tuple fields, got %d", len(t.TupleElems), len(tv))
				}
				raw = tv[i]
			case map[string]any:
				raw = tv[t.TupleRawNames[i]]
			default:
				return reflect.Value{}, fmt.Errorf("expected tuple as array or object, got %T", v)
			}
			ev, err := coerce(*elem, raw)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%s: %w", t.TupleRawNames[i], err)
			}
			out.Field(i).Set(ev)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported type %s", t.String())
}

func coerceInt(t abi.Type, v any) (reflect.Value, error) {
	n, err := toBig(v)
	if err != nil {
		return reflect.Value{}, err
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return reflect.Value{}, fmt.Errorf("negative value for %s", t.String())
	}
	if t.T == abi.UintTy && n.BitLen() > t.Size {
		return reflect.Value{}, fmt.Errorf("value overflows %s", t.String())
	}
	if t.T == abi.IntTy {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return reflect.Value{}, fmt.Errorf("value overflows %s", t.String())
		}
	}

	typ := t.GetType()
	if typ == bigIntType {
		return reflect.ValueOf(n), nil
	}
	out := reflect.New(typ).Elem()
	if t.T == abi.UintTy {
		out.SetUint(n.Uint64())
	} else {
		out.SetInt(n.Int64())
	}
	return out, nil
}

func toBig(v any) (*big.Int, error) {
	switch n := v.(type) {
	case string:
		s := strings.TrimSpace(n)
		base := 10
		if strings.HasPrefix(s, "0x") {
			s, base = s[2:], 16
		}
		out, ok := new(big.Int).SetString(s, base)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return out, nil
	case float64:
		if n != float64(int64(n)) {
			return nil, fmt.Errorf("invalid integer %v", n)
		}
		return big.NewInt(int64(n)), nil
	case json.Number:
		return toBig(string(n))
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	}
	return nil, fmt.Errorf("invalid integer %v", v)
}

func hexBytes(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected hex string, got %T", v)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q", s)
	}
	return b, nil
}

// JSONValue converts a decoded ABI value to something that marshals
// cleanly: integers become decimal strings, addresses and bytes hex.
func JSONValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *big.Int:
		return t.String()
	case common.Address:
		return t.Hex()
	case common.Hash:
		return t.Hex()
	case []byte:
		return "0x" + hex.EncodeToString(t)
	case string, bool:
		return t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return "0x" + hex.EncodeToString(b)
		}
		fallthrough
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = JSONValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			f := rv.Type().Field(i)
			if f.IsExported() {
				out[lowerFirst(f.Name)] = JSONValue(rv.Field(i).Interface())
			}
		}
		return out
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return JSONValue(rv.Elem().Interface())
	}
	return v
}

// DecodeOutputs returns a single value for one output, a list otherwise.
func DecodeOutputs(values []any) any {
	if len(values) == 1 {
		return JSONValue(values[0])
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = JSONValue(v)
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
