// Package handler adapts ordinary Go functions to the duplexrpc.Handler
// signature, and provides a couple of small Assigner implementations.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/airyai/duplexrpc"
	"github.com/airyai/duplexrpc/code"
)

// Func is a convenience alias for duplexrpc.Handler.
type Func = duplexrpc.Handler

// A Map is a trivial implementation of the duplexrpc.Assigner interface that
// looks up method names in a static map of function values.
type Map map[string]duplexrpc.Handler

// Assign implements duplexrpc.Assigner.
func (m Map) Assign(_ context.Context, method string) duplexrpc.Handler { return m[method] }

// Names reports the sorted method names m exposes.
func (m Map) Names() []string {
	var names []string
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// A ServiceMap combines multiple assigners into one, permitting a server to
// export multiple services under different names.
type ServiceMap map[string]duplexrpc.Assigner

// Assign splits the inbound method name as Service.Method, and passes the
// Method portion to the corresponding Service assigner. If method does not
// have the form Service.Method, or Service is not registered in m, the
// lookup fails and returns nil.
func (m ServiceMap) Assign(ctx context.Context, method string) duplexrpc.Handler {
	parts := strings.SplitN(method, ".", 2)
	if len(parts) == 1 {
		return nil
	} else if ass, ok := m[parts[0]]; ok {
		return ass.Assign(ctx, parts[1])
	}
	return nil
}

// New adapts a function to a duplexrpc.Handler. The concrete value of fn
// must be a function accepted by Check. The resulting Handler will handle
// JSON encoding and decoding, call fn, and report appropriate faults.
//
// New is intended for use during program initialization, and will panic if
// the type of fn does not have one of the accepted forms. Programs that need
// to check for possible errors should call Check directly and use the Wrap
// method of the resulting FuncInfo.
func New(fn any) duplexrpc.Handler {
	fi, err := Check(fn)
	if err != nil {
		panic(err)
	}
	return fi.Wrap()
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
	reqType = reflect.TypeOf((*duplexrpc.Request)(nil))

	strictType = reflect.TypeOf((*interface{ DisallowUnknownFields() })(nil)).Elem()

	errNoParameters = duplexrpc.Faultf(code.InvalidParams, "no parameters accepted")
)

// FuncInfo captures type signature information from a valid handler function.
type FuncInfo struct {
	Type         reflect.Type // the complete function type
	Argument     reflect.Type // the non-context argument type, or nil
	Result       reflect.Type // the non-error result type, or nil
	ReportsError bool         // true if the function reports an error

	strictFields bool     // enforce strict field checking
	posNames     []string // positional field names

	fn any // the original function value
}

// SetStrict sets the flag on fi that determines whether the wrapper it
// generates will enforce strict field checking: unmarshaling a named-params
// object with unknown fields becomes an InvalidParams fault. It has no
// effect for non-struct arguments.
func (fi *FuncInfo) SetStrict(strict bool) *FuncInfo { fi.strictFields = strict; return fi }

// Wrap adapts the function represented by fi to a duplexrpc.Handler. The
// wrapped function can obtain the *duplexrpc.Request by declaring a
// *duplexrpc.Request parameter directly.
//
// Wrap panics if fi == nil or does not represent a valid function type. A
// FuncInfo returned by a successful call to Check is always valid.
func (fi *FuncInfo) Wrap() duplexrpc.Handler {
	if fi == nil || fi.fn == nil {
		panic("handler: invalid FuncInfo value")
	}

	if f, ok := fi.fn.(duplexrpc.Handler); ok {
		return f
	}

	wrapArg := fi.argWrapper()

	var newInput func(ctx reflect.Value, req *duplexrpc.Request) ([]reflect.Value, error)

	arg := fi.Argument
	switch {
	case arg == nil:
		newInput = func(ctx reflect.Value, req *duplexrpc.Request) ([]reflect.Value, error) {
			if req.HasParams() {
				return nil, errNoParameters
			}
			return []reflect.Value{ctx}, nil
		}

	case arg == reqType:
		newInput = func(ctx reflect.Value, req *duplexrpc.Request) ([]reflect.Value, error) {
			return []reflect.Value{ctx, reflect.ValueOf(req)}, nil
		}

	case arg.Kind() == reflect.Ptr:
		newInput = func(ctx reflect.Value, req *duplexrpc.Request) ([]reflect.Value, error) {
			in := reflect.New(arg.Elem())
			if err := req.UnmarshalParams(wrapArg(in)); err != nil {
				return nil, invalidParamsFault(err)
			}
			return []reflect.Value{ctx, in}, nil
		}

	default:
		newInput = func(ctx reflect.Value, req *duplexrpc.Request) ([]reflect.Value, error) {
			in := reflect.New(arg)
			if err := req.UnmarshalParams(wrapArg(in)); err != nil {
				return nil, invalidParamsFault(err)
			}
			return []reflect.Value{ctx, in.Elem()}, nil
		}
	}

	var decodeOut func([]reflect.Value) (any, error)
	switch {
	case fi.Result == nil:
		decodeOut = func(vals []reflect.Value) (any, error) {
			if oerr := vals[0].Interface(); oerr != nil {
				return nil, oerr.(error)
			}
			return nil, nil
		}
	case !fi.ReportsError:
		decodeOut = func(vals []reflect.Value) (any, error) {
			return vals[0].Interface(), nil
		}
	default:
		decodeOut = func(vals []reflect.Value) (any, error) {
			if oerr := vals[1].Interface(); oerr != nil {
				return nil, oerr.(error)
			}
			return vals[0].Interface(), nil
		}
	}

	call := reflect.ValueOf(fi.fn).Call
	return func(ctx context.Context, req *duplexrpc.Request) (any, error) {
		args, ierr := newInput(reflect.ValueOf(ctx), req)
		if ierr != nil {
			return nil, ierr
		}
		return decodeOut(call(args))
	}
}

// Check checks whether fn can serve as a duplexrpc.Handler. The concrete
// value of fn must be a function with one of the following type signature
// schemes, for JSON-marshalable types X and Y:
//
//	func(context.Context) error
//	func(context.Context) Y
//	func(context.Context) (Y, error)
//	func(context.Context, X) error
//	func(context.Context, X) Y
//	func(context.Context, X) (Y, error)
//	func(context.Context, *duplexrpc.Request) error
//	func(context.Context, *duplexrpc.Request) Y
//	func(context.Context, *duplexrpc.Request) (Y, error)
//
// If the type of X is a struct or a pointer to a struct, the generated
// wrapper accepts parameters as either a named object or a positional array
// mapped to the fields of X in declaration order; unexported fields,
// `json:"-"` fields, and untagged anonymous fields are skipped.
//
// For more complex positional signatures, see Positional.
func Check(fn any) (*FuncInfo, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}

	info := &FuncInfo{Type: reflect.TypeOf(fn), fn: fn}
	if info.Type.Kind() != reflect.Func {
		return nil, errors.New("not a function")
	}

	if np := info.Type.NumIn(); np == 0 || np > 2 {
		return nil, errors.New("wrong number of parameters")
	} else if info.Type.In(0) != ctxType {
		return nil, errors.New("first parameter is not context.Context")
	} else if info.Type.IsVariadic() {
		return nil, errors.New("variadic functions are not supported")
	} else if np == 2 {
		info.Argument = info.Type.In(1)
	}

	if ok, names := structFieldNames(info.Argument); ok {
		info.posNames = names
	}

	no := info.Type.NumOut()
	if no < 1 || no > 2 {
		return nil, errors.New("wrong number of results")
	} else if no == 2 && info.Type.Out(1) != errType {
		return nil, errors.New("result is not of type error")
	}
	info.ReportsError = info.Type.Out(no-1) == errType
	if no == 2 || !info.ReportsError {
		info.Result = info.Type.Out(0)
	}
	return info, nil
}

// arrayStub wraps an arbitrary value to translate a positional-params array
// into object form before unmarshaling.
type arrayStub struct {
	v        any
	posNames []string
}

func (s *arrayStub) translate(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return data, nil // not a positional array
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, err
	} else if len(arr) != len(s.posNames) {
		return nil, duplexrpc.Faultf(code.InvalidParams, "got %d parameters, want %d", len(arr), len(s.posNames))
	}

	obj := make(map[string]json.RawMessage, len(s.posNames))
	for i, name := range s.posNames {
		obj[name] = arr[i]
	}
	return json.Marshal(obj)
}

func (s *arrayStub) UnmarshalJSON(data []byte) error {
	actual, err := s.translate(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(actual, s.v)
}

// strictStub wraps an arbitrary value to enforce strict field checking when
// unmarshaling a named-params object.
type strictStub struct{ v any }

func (s *strictStub) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(s.v)
}

func (fi *FuncInfo) argWrapper() func(reflect.Value) any {
	strict := fi.strictFields && fi.Argument != nil && !fi.Argument.Implements(strictType)
	names := fi.posNames
	array := len(names) != 0
	switch {
	case strict && array:
		return func(v reflect.Value) any {
			return &arrayStub{v: &strictStub{v: v.Interface()}, posNames: names}
		}
	case strict:
		return func(v reflect.Value) any {
			return &strictStub{v: v.Interface()}
		}
	case array:
		return func(v reflect.Value) any {
			return &arrayStub{v: v.Interface(), posNames: names}
		}
	default:
		return reflect.Value.Interface
	}
}

func invalidParamsFault(err error) error {
	var f *duplexrpc.Fault
	if errors.As(err, &f) {
		return f
	}
	return duplexrpc.Faultf(code.InvalidParams, "invalid parameters: %v", err)
}
