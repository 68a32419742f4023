package scripthost

import (
	"fmt"
	"time"

	"github.com/d5/tengo/v2"

	"github.com/chopper-cli/chopper/internal/validate"
)

// addFn installs a native function under name.
func addFn(s *tengo.Script, name string, fn tengo.CallableFunc) error {
	return s.Add(name, &tengo.UserFunction{Name: name, Value: fn})
}

func argCount(args []tengo.Object, want int) error {
	if len(args) != want {
		return tengo.ErrWrongNumArguments
	}
	return nil
}

func stringArg(args []tengo.Object, i int, name string) (string, error) {
	switch v := args[i].(type) {
	case *tengo.String:
		return v.Value, nil
	default:
		return "", fmt.Errorf("%s must be a string, got %s", name, args[i].TypeName())
	}
}

func intArg(args []tengo.Object, i int, name string) (int64, error) {
	switch v := args[i].(type) {
	case *tengo.Int:
		return v.Value, nil
	default:
		return 0, fmt.Errorf("%s must be an int, got %s", name, args[i].TypeName())
	}
}

func boolArg(args []tengo.Object, i int, name string) (bool, error) {
	switch v := args[i].(type) {
	case *tengo.Bool:
		return !v.IsFalsy(), nil
	default:
		return false, fmt.Errorf("%s must be a bool, got %s", name, args[i].TypeName())
	}
}

func arrayArg(args []tengo.Object, i int, name string) ([]tengo.Object, error) {
	switch v := args[i].(type) {
	case *tengo.Array:
		return v.Value, nil
	case *tengo.ImmutableArray:
		return v.Value, nil
	default:
		return nil, fmt.Errorf("%s must be an array, got %s", name, args[i].TypeName())
	}
}

func mapArg(args []tengo.Object, i int, name string) (map[string]tengo.Object, error) {
	switch v := args[i].(type) {
	case *tengo.Map:
		return v.Value, nil
	case *tengo.ImmutableMap:
		return v.Value, nil
	default:
		return nil, fmt.Errorf("%s must be a map, got %s", name, args[i].TypeName())
	}
}

// stringElems converts an array-of-strings argument, rejecting any
// non-string element.
func stringElems(field string, elems []tengo.Object) ([]string, error) {
	out := make([]string, 0, len(elems))
	for _, elem := range elems {
		s, ok := elem.(*tengo.String)
		if !ok {
			return nil, fmt.Errorf("all values in %s must be strings, got %s", field, elem.TypeName())
		}
		if err := validate.NoNUL(field, s.Value); err != nil {
			return nil, err
		}
		out = append(out, s.Value)
	}
	return out, nil
}

// stringEntries converts a map-of-strings argument, rejecting any
// non-string value.
func stringEntries(field string, entries map[string]tengo.Object) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for k, v := range entries {
		s, ok := v.(*tengo.String)
		if !ok {
			return nil, fmt.Errorf("all values in %s must be strings, got %s", field, v.TypeName())
		}
		if err := validate.NoNUL(field, k); err != nil {
			return nil, err
		}
		if err := validate.NoNUL(field, s.Value); err != nil {
			return nil, err
		}
		out[k] = s.Value
	}
	return out, nil
}

func pathArg(args []tengo.Object, i int, name string) (string, error) {
	raw, err := stringArg(args, i, name)
	if err != nil {
		return "", err
	}
	return validate.Path(name, raw)
}

// timeoutArg normalizes a timeout in milliseconds: negative is a fault,
// zero means "no timeout" and comes back as a zero duration.
func timeoutArg(args []tengo.Object, i int, name string) (time.Duration, error) {
	ms, err := intArg(args, i, name)
	if err != nil {
		return 0, err
	}
	if err := validate.Timeout(ms); err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func strObj(s string) tengo.Object { return &tengo.String{Value: s} }

func intObj(n int64) tengo.Object { return &tengo.Int{Value: n} }

func boolObj(b bool) tengo.Object { return boolObjs[btoi(b)] }

var boolObjs = [2]tengo.Object{tengo.FalseValue, tengo.TrueValue}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mapObj(entries map[string]tengo.Object) tengo.Object {
	return &tengo.Map{Value: entries}
}

func strArrayObj(values []string) tengo.Object {
	elems := make([]tengo.Object, 0, len(values))
	for _, v := range values {
		elems = append(elems, strObj(v))
	}
	return &tengo.Array{Value: elems}
}
