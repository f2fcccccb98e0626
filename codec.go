package duplexrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/airyai/duplexrpc/code"
)

// ErrUnclassifiable is returned by DecodeFrame for input that cannot be
// classified at all -- the sentinel "⊥" of spec.md §4.1. This covers both
// invalid JSON and JSON that is not an object carrying an "id" field. The
// caller should log and discard the input and, on the server side, tear down
// the connection after replying with an InvalidRequest fault bound to a null
// id.
var ErrUnclassifiable = errors.New("duplexrpc: unclassifiable frame")

// EncodeRequest builds the wire form of a request: {"id","method"[,"params"]}.
// It fails with an InternalError Fault if method does not encode to valid
// JSON, which can only happen for pathological inputs.
func EncodeRequest(id int64, method string, params Params) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	buf.WriteString(strconv.FormatInt(id, 10))
	buf.WriteString(`,"method":`)
	mb, err := json.Marshal(method)
	if err != nil {
		return nil, Faultf(code.InternalError, "encode method: %v", err)
	}
	buf.Write(mb)
	if params.HasParams() {
		buf.WriteString(`,"params":`)
		buf.Write(params.raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeResult builds the wire form of a successful response: {"id","result"}.
// It fails with an InternalError Fault if result is not JSON-encodable.
func EncodeResult(id int64, result any) ([]byte, error) {
	rb, err := json.Marshal(result)
	if err != nil {
		return nil, Faultf(code.InternalError, "encode result: %v", err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	buf.WriteString(strconv.FormatInt(id, 10))
	buf.WriteString(`,"result":`)
	buf.Write(rb)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeResultRaw builds the wire form of a successful response whose result
// is already-encoded JSON (as produced by dispatch). An empty raw encodes as
// a JSON null result.
func encodeResultRaw(id int64, raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	buf.WriteString(strconv.FormatInt(id, 10))
	buf.WriteString(`,"result":`)
	if len(raw) == 0 {
		buf.WriteString("null")
	} else {
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeFault builds the wire form of an error response: {"id","error"}.
func EncodeFault(id int64, f *Fault) ([]byte, error) {
	return encodeFault(strconv.FormatInt(id, 10), f)
}

// EncodeFaultNullID builds an error response whose id is JSON null, used
// when a frame's own id could not be recovered at all.
func EncodeFaultNullID(f *Fault) ([]byte, error) {
	return encodeFault("null", f)
}

func encodeFault(jsonID string, f *Fault) ([]byte, error) {
	eb, err := json.Marshal(f)
	if err != nil {
		return nil, Faultf(code.InternalError, "encode fault: %v", err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	buf.WriteString(jsonID)
	buf.WriteString(`,"error":`)
	buf.Write(eb)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeFrame parses and classifies a single line of wire input, per
// spec.md §4.1:
//
//  1. Invalid JSON, or a JSON value that is not an object, or an object
//     lacking an integer "id" -- reports ErrUnclassifiable.
//  2. An object with a "method" key is a request attempt. If its method is
//     empty or its params are neither absent, an array, nor an object, the
//     result is a Frame with BadFault set (bound to the recovered id)
//     instead of an error.
//  3. Otherwise the object is a response attempt. An "error" key must be an
//     object with both "code" and "message"; any other shape (including a
//     missing "result" when there is no "error") reports ErrUnclassifiable.
func DecodeFrame(line []byte) (*Frame, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil, ErrUnclassifiable
	}
	idRaw, hasID := obj["id"]
	if !hasID {
		return nil, ErrUnclassifiable
	}
	var id int64
	if isJSONNull(idRaw) {
		return nil, ErrUnclassifiable
	}
	if err := json.Unmarshal(idRaw, &id); err != nil {
		return nil, ErrUnclassifiable
	}

	if methodRaw, hasMethod := obj["method"]; hasMethod {
		return decodeRequestFrame(id, methodRaw, obj["params"]), nil
	}
	return decodeResponseFrame(id, obj)
}

func decodeRequestFrame(id int64, methodRaw, paramsRaw json.RawMessage) *Frame {
	var method string
	if err := json.Unmarshal(methodRaw, &method); err != nil || method == "" {
		return &Frame{BadID: id, BadFault: newFault(code.InvalidRequest)}
	}

	var params Params
	if len(paramsRaw) != 0 && !isJSONNull(paramsRaw) {
		switch firstByte(paramsRaw) {
		case '[':
			params = Params{Kind: PositionalParams, raw: paramsRaw}
		case '{':
			params = Params{Kind: NamedParams, raw: paramsRaw}
		default:
			return &Frame{BadID: id, BadFault: newFault(code.InvalidRequest)}
		}
	}
	return &Frame{Request: &Request{ID: id, Method: method, Params: params}}
}

func decodeResponseFrame(id int64, obj map[string]json.RawMessage) (*Frame, error) {
	if errRaw, hasError := obj["error"]; hasError {
		var em map[string]json.RawMessage
		if err := json.Unmarshal(errRaw, &em); err != nil {
			return nil, ErrUnclassifiable
		}
		codeRaw, hasCode := em["code"]
		msgRaw, hasMsg := em["message"]
		if !hasCode || !hasMsg {
			return nil, ErrUnclassifiable
		}
		var f Fault
		if err := json.Unmarshal(codeRaw, &f.Code); err != nil {
			return nil, ErrUnclassifiable
		}
		if err := json.Unmarshal(msgRaw, &f.Message); err != nil {
			return nil, ErrUnclassifiable
		}
		return &Frame{Response: &Response{ID: id, Fault: &f}}, nil
	}
	resultRaw, hasResult := obj["result"]
	if !hasResult {
		return nil, ErrUnclassifiable
	}
	return &Frame{Response: &Response{ID: id, Result: resultRaw}}, nil
}

// isJSONNull reports whether msg is exactly the JSON literal "null".
func isJSONNull(msg json.RawMessage) bool {
	return len(msg) == 4 && msg[0] == 'n' && msg[1] == 'u' && msg[2] == 'l' && msg[3] == 'l'
}

// firstByte returns the first non-whitespace byte of data, or 0 if there is none.
func firstByte(data []byte) byte {
	clean := bytes.TrimSpace(data)
	if len(clean) == 0 {
		return 0
	}
	return clean[0]
}
