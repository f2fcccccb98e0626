package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/airyai/duplexrpc"
	"github.com/airyai/duplexrpc/code"
	"github.com/airyai/duplexrpc/handler"
	"github.com/google/go-cmp/cmp"
)

func y1(context.Context) (int, error) { return 0, nil }
func y2(_ context.Context, vs []int) (int, error) { return len(vs), nil }
func y3(context.Context) error { return errors.New("blah") }

type argStruct struct {
	A string `json:"alpha"`
	B int    `json:"bravo"`
}

// Verify that Check accepts the documented signatures and rejects others.
func TestCheck(t *testing.T) {
	tests := []struct {
		v   any
		bad bool
	}{
		{v: nil, bad: true},
		{v: "not a function", bad: true},

		{v: func(context.Context) error { return nil }},
		{v: func(context.Context, *duplexrpc.Request) (any, error) { return nil, nil }},
		{v: func(context.Context) (int, error) { return 0, nil }},
		{v: func(context.Context, []int) error { return nil }},
		{v: func(context.Context, []bool) (float64, error) { return 0, nil }},
		{v: func(context.Context, *argStruct) int { return 0 }},
		{v: func(context.Context, *duplexrpc.Request) error { return nil }},
		{v: func(context.Context, *duplexrpc.Request) float64 { return 0 }},
		{v: func(context.Context) bool { return true }},
		{v: func(context.Context, int) bool { return true }},

		{v: func() error { return nil }, bad: true},
		{v: func(a, b, c int) bool { return false }, bad: true},
		{v: func(byte) {}, bad: true},
		{v: func(byte) (int, bool, error) { return 0, true, nil }, bad: true},
		{v: func(string) error { return nil }, bad: true},
		{v: func(a, b string) error { return nil }, bad: true},
		{v: func(context.Context) (int, bool) { return 1, true }, bad: true},
	}
	for _, test := range tests {
		got, err := handler.Check(test.v)
		if !test.bad && err != nil {
			t.Errorf("Check(%T): unexpected error: %v", test.v, err)
		} else if test.bad && err == nil {
			t.Errorf("Check(%T): got %+v, want error", test.v, got)
		}
	}
}

func mustRequest(t *testing.T, id int64, method, params string) *duplexrpc.Request {
	t.Helper()
	line := []byte(`{"id":` + itoa(id) + `,"method":"` + method + `","params":` + params + `}`)
	frame, err := duplexrpc.DecodeFrame(line)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !frame.IsRequest() {
		t.Fatalf("DecodeFrame did not classify as a request")
	}
	return frame.Request
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Verify that wrappers built by FuncInfo.Wrap decode arguments correctly.
func TestFuncInfo_wrapDecode(t *testing.T) {
	tests := []struct {
		fn   duplexrpc.Handler
		p    string
		want any
	}{
		{handler.NewPos(func(_ context.Context, z int) int { return z }, "arg"),
			`[25]`, float64(25)},
		{handler.NewPos(func(_ context.Context, z int) int { return z }, "arg"),
			`{"arg":109}`, float64(109)},
		{handler.New(func(_ context.Context, v json.RawMessage) string { return string(v) }),
			`{"x": true, "y": null}`, `{"x": true, "y": null}`},
		{handler.New(func(_ context.Context, ss []string) int { return len(ss) }),
			`["a", "b", "c"]`, float64(3)},
	}
	ctx := context.Background()
	for i, test := range tests {
		req := mustRequest(t, int64(i+1), "x", test.p)
		got, err := test.fn(ctx, req)
		if err != nil {
			t.Errorf("Call %d failed: %v", i, err)
			continue
		}
		// Normalize via JSON so int/float distinctions don't trip cmp.
		gb, _ := json.Marshal(got)
		var gv any
		json.Unmarshal(gb, &gv)
		if diff := cmp.Diff(test.want, gv); diff != "" {
			t.Errorf("Call %d: wrong result (-want, +got)\n%s", i, diff)
		}
	}
}

// Verify that Positional handles its accepted and rejected cases.
func TestPositional(t *testing.T) {
	tests := []struct {
		v   any
		n   []string
		bad bool
	}{
		{v: nil, bad: true},
		{v: "not a function", bad: true},

		{v: func(context.Context) error { return nil }},
		{v: func(context.Context) int { return 1 }},
		{v: func(context.Context, bool) bool { return false }, n: []string{"isTrue"}},
		{v: func(context.Context, int, int) int { return 0 }, n: []string{"a", "b"}},
		{v: func(context.Context, string, int, []float64) int { return 0 }, n: []string{"a", "b", "c"}},

		{v: func() error { return nil }, bad: true},
		{v: func(int) int { return 0 }, bad: true},
		{v: func(context.Context, string) error { return nil }, n: nil, bad: true},
		{v: func(context.Context, string, string, string) error { return nil }, n: []string{"x", "y"}, bad: true},
		{v: func(context.Context, string, ...float64) int { return 0 }, n: []string{"a", "b"}, bad: true},
	}
	for _, test := range tests {
		got, err := handler.Positional(test.v, test.n...)
		if !test.bad && err != nil {
			t.Errorf("Positional(%T, %q): unexpected error: %v", test.v, test.n, err)
		} else if test.bad && err == nil {
			t.Errorf("Positional(%T, %q): got %+v, want error", test.v, test.n, got)
		}
	}
}

// Verify positional decoding accepts both array and object shapes and
// reports InvalidParams for malformed input.
func TestPositional_decode(t *testing.T) {
	fi, err := handler.Positional(func(ctx context.Context, a, b int) int {
		return a + b
	}, "first", "second")
	if err != nil {
		t.Fatalf("Positional: unexpected error: %v", err)
	}
	call := fi.Wrap()
	tests := []struct {
		params string
		want   int
		bad    bool
	}{
		{`{"first":5,"second":3}`, 8, false},
		{`[5,3]`, 8, false},
		{`{"first":5}`, 5, false},
		{`{}`, 0, false},
		{`null`, 0, false},

		{`["wrong", "type"]`, 0, true},
		{`{"unknown":"field"}`, 0, true},
		{`[1]`, 0, true},
		{`[1,2,3]`, 0, true},
	}
	for i, test := range tests {
		req := mustRequest(t, int64(i+1), "add", test.params)
		got, err := call(context.Background(), req)
		if !test.bad {
			if err != nil {
				t.Errorf("Call %q: unexpected error: %v", test.params, err)
			} else if z := got.(int); z != test.want {
				t.Errorf("Call %q: got %d, want %d", test.params, z, test.want)
			}
		} else if err == nil {
			t.Errorf("Call %q: got %v, want error", test.params, got)
		}
	}
}

// Verify that struct arguments decode from both object and array shapes.
func TestCheck_structArg(t *testing.T) {
	type args struct {
		A    string `json:"apple"`
		B    int    `json:"-"`
		C    bool   `json:",omitempty"`
		D    byte
		Evil int `json:"eee"`
	}
	const inputObj = `{"apple":"1","c":true,"d":25,"eee":666}`
	const inputArray = `["1", true, 25, 666]`
	fail := errors.New("fail")

	tests := []struct {
		name string
		v    any
		want any
		err  error
	}{
		{name: "non-pointer returns string", v: func(_ context.Context, x args) string { return x.A }, want: "1"},
		{name: "pointer returns bool", v: func(_ context.Context, x *args) bool { return x.C }, want: true},
		{name: "non-pointer returns int", v: func(_ context.Context, x args) int { return x.Evil }, want: 666},
		{name: "non-pointer reports error", v: func(context.Context, args) (int, error) { return 0, fail }, err: fail},
		{name: "pointer reports error", v: func(context.Context, *args) error { return fail }, err: fail},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fi, err := handler.Check(test.v)
			if err != nil {
				t.Fatalf("Check failed for %T: %v", test.v, err)
			}
			fn := fi.Wrap()
			for _, sub := range []struct {
				name   string
				params string
			}{
				{"Object", inputObj},
				{"Array", inputArray},
			} {
				t.Run(sub.name, func(t *testing.T) {
					req := mustRequest(t, 1, "M", sub.params)
					rsp, err := fn(context.Background(), req)
					if err != test.err {
						t.Errorf("Got error %v, want %v", err, test.err)
					}
					if rsp != test.want {
						t.Errorf("Got value %v, want %v", rsp, test.want)
					}
				})
			}
		})
	}
}

func TestFuncInfo_SetStrict(t *testing.T) {
	type arg struct{ A, B string }
	fi, err := handler.Check(func(ctx context.Context, arg *arg) error { return nil })
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	fn := fi.SetStrict(true).Wrap()

	req := mustRequest(t, 100, "f", `{"A":"foo","Z":25}`)
	_, err = fn(context.Background(), req)
	var f *duplexrpc.Fault
	if !errors.As(err, &f) || f.Code != code.InvalidParams {
		t.Errorf("Handler returned %v, want an InvalidParams fault", err)
	}
}

// Verify that pointer-typed arguments are not double-indirected.
func TestNew_pointerRegression(t *testing.T) {
	var got argStruct
	method := handler.New(func(_ context.Context, arg *argStruct) error {
		got = *arg
		return nil
	})
	req := mustRequest(t, 1, "bar", `{"alpha":"xyzzy","bravo":23}`)
	if _, err := method(context.Background(), req); err != nil {
		t.Errorf("Handler failed: %v", err)
	}
	want := argStruct{A: "xyzzy", B: 23}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Wrong argStruct value: (-want, +got)\n%s", diff)
	}
}

// Verify that a ServiceMap assigns composed names correctly.
func TestServiceMap(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"nothing", false},
		{"Test", false},
		{"Test.", false},
		{"Test.Y1", true},
		{"Test.Y2", true},
		{"Test.Y3", true},
		{"Test.Y4", false},
	}
	ctx := context.Background()
	m := handler.ServiceMap{"Test": handler.Map{
		"Y1": handler.New(y1),
		"Y2": handler.New(y2),
		"Y3": handler.New(y3),
	}}
	for _, test := range tests {
		got := m.Assign(ctx, test.name) != nil
		if got != test.want {
			t.Errorf("Assign(%q): got %v, want %v", test.name, got, test.want)
		}
	}

	got, want := handler.Map{"Y1": handler.New(y1), "Y2": handler.New(y2)}.Names(), []string{"Y1", "Y2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Wrong method names: (-want, +got)\n%s", diff)
	}
}
