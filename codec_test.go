package duplexrpc

import (
	"encoding/json"
	"testing"

	"github.com/airyai/duplexrpc/code"
)

func TestEncodeDecodeRequest(t *testing.T) {
	frame, err := EncodeRequest(7, "echo", PositionalOf([]any{"hello"}))
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !decoded.IsRequest() {
		t.Fatalf("DecodeFrame(%s): not classified as a request", frame)
	}
	if decoded.Request.ID != 7 || decoded.Request.Method != "echo" {
		t.Errorf("got id=%d method=%q, want id=7 method=echo", decoded.Request.ID, decoded.Request.Method)
	}
	if decoded.Request.Params.Kind != PositionalParams {
		t.Errorf("got params kind %v, want positional", decoded.Request.Params.Kind)
	}
}

func TestEncodeDecodeResult(t *testing.T) {
	frame, err := EncodeResult(3, map[string]int{"x": 1})
	if err != nil {
		t.Fatalf("EncodeResult: %v", err)
	}
	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !decoded.IsResponse() || decoded.Response.IsError() {
		t.Fatalf("DecodeFrame(%s): not classified as a successful response", frame)
	}
	var got map[string]int
	if err := json.Unmarshal(decoded.Response.Result, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got["x"] != 1 {
		t.Errorf("got result %v, want {x:1}", got)
	}
}

func TestEncodeDecodeFault(t *testing.T) {
	frame, err := EncodeFault(9, newFault(code.MethodNotFound))
	if err != nil {
		t.Fatalf("EncodeFault: %v", err)
	}
	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !decoded.IsResponse() || !decoded.Response.IsError() {
		t.Fatalf("DecodeFrame(%s): not classified as an error response", frame)
	}
	if decoded.Response.Fault.Code != code.MethodNotFound {
		t.Errorf("got code %v, want MethodNotFound", decoded.Response.Fault.Code)
	}
}

func TestDecodeFrameUnclassifiable(t *testing.T) {
	tests := []string{
		``,
		`not json`,
		`[]`,
		`{}`,
		`{"method":"x"}`,           // missing id
		`{"id":"not-a-number"}`,    // id not an integer
		`{"id":1}`,                 // neither method nor result nor error
		`{"id":1,"error":{}}`,      // error object missing code/message
		`{"id":1,"error":{"code":1}}`, // error missing message
	}
	for _, in := range tests {
		if _, err := DecodeFrame([]byte(in)); err != ErrUnclassifiable {
			t.Errorf("DecodeFrame(%q): got err=%v, want ErrUnclassifiable", in, err)
		}
	}
}

func TestDecodeFrameBadRequest(t *testing.T) {
	tests := []string{
		`{"id":1,"method":""}`,          // empty method
		`{"id":1,"method":"x","params":5}`, // params neither array nor object
		`{"id":1,"method":"x","params":"s"}`,
	}
	for _, in := range tests {
		frame, err := DecodeFrame([]byte(in))
		if err != nil {
			t.Errorf("DecodeFrame(%q): unexpected error: %v", in, err)
			continue
		}
		if !frame.IsBad() {
			t.Errorf("DecodeFrame(%q): got %+v, want a bad-frame classification", in, frame)
		}
	}
}

func TestParamsRoundTrip(t *testing.T) {
	p := NamedOf(map[string]int{"a": 1})
	var out map[string]int
	if err := p.UnmarshalTo(&out); err != nil {
		t.Fatalf("UnmarshalTo: %v", err)
	}
	if out["a"] != 1 {
		t.Errorf("got %v, want {a:1}", out)
	}
}
