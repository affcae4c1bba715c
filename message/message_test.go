package message

import (
	"bytes"
	"encoding/json"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestSerializeText(t *testing.T) {
	testcases := []struct {
		msg  *Message
		want string
	}{
		{NewRequest(1, "/dummy/returnString", json.RawMessage(`[]`)), `{"id":1,"type":1,"data":{"path":"/dummy/returnString","args":[]}}`},
		{NewCallback(2, 0, json.RawMessage(`[10]`)), `{"id":2,"type":2,"data":{"index":0,"args":[10]}}`},
		{NewResponse(3, json.RawMessage(`[null,"hello world"]`)), `{"id":3,"type":3,"data":[null,"hello world"]}`},
		{NewStreamRequest(4, 1), `{"id":4,"type":4,"data":{"index":1}}`},
		{NewSessionRequest(5, ""), `{"id":5,"type":8}`},
		{NewSessionResponse(6, "abc"), `{"id":6,"type":9,"data":"abc"}`},
	}

	for i, tc := range testcases {
		data, binary, err := Serialize(tc.msg)
		if err != nil {
			t.Errorf("[case %d] unexpected error: %s", i, err)
			continue
		}
		if binary {
			t.Errorf("[case %d] got binary frame for %s", i, tc.msg.Type)
		}
		if got := string(data); got != tc.want {
			t.Errorf("[case %d]\n   got: %s\n  want: %s", i, got, tc.want)
		}
	}
}

func TestSerializeBinary(t *testing.T) {
	data, binary, err := Serialize(NewChunk(258, []byte{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	if !binary {
		t.Error("chunk was not serialized as binary")
	}
	if want := []byte{2, 1, 0, 0, byte(TypeStreamResponseChunk), 1, 2, 3}; !bytes.Equal(data, want) {
		t.Errorf("got: %v; want: %v", data, want)
	}

	data, _, err = Serialize(NewEnd(7))
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{7, 0, 0, 0, byte(TypeStreamResponseEnd)}; !bytes.Equal(data, want) {
		t.Errorf("got: %v; want: %v", data, want)
	}
}

func TestRoundTrip(t *testing.T) {
	msgs := []*Message{
		NewRequest(1, "/a/b", json.RawMessage(`[1,{"$callback":0}]`)),
		NewCallback(1, 0, json.RawMessage(`[50]`)),
		NewResponse(1, json.RawMessage(`[null,100]`)),
		NewStreamRequest(1, 0),
		NewChunk(1, []byte("hello")),
		NewEnd(1),
		NewSessionRequest(1, "xyz"),
		NewSessionResponse(1, "xyz"),
	}
	for _, sent := range msgs {
		data, binary, err := Serialize(sent)
		if err != nil {
			t.Fatalf("%s: %s", sent.Type, err)
		}
		got, err := Parse(data, binary)
		if err != nil {
			t.Fatalf("%s: %s", sent.Type, err)
		}
		if got.ID != sent.ID || got.Type != sent.Type {
			t.Errorf("got: %s; want: %s", got, sent)
		}
		if got.String() != sent.String() {
			t.Errorf("got: %s; want: %s", got, sent)
		}
	}
}

func TestParseTextInvalid(t *testing.T) {
	testcases := []string{
		`not json`,
		`{"type":1,"data":{"path":"/a"}}`,
		`{"id":"1","type":1,"data":{"path":"/a"}}`,
		`{"id":1,"type":42}`,
		`{"id":1}`,
		`{"id":1,"type":1,"data":{"args":[]}}`,
		`{"id":1,"type":1,"data":{"path":5}}`,
		`{"id":1,"type":1,"data":{"path":"/a","args":{}}}`,
		`{"id":1,"type":2,"data":{"args":[]}}`,
		`{"id":1,"type":2,"data":{"index":0,"args":"x"}}`,
		`{"id":1,"type":3,"data":[1,2,3]}`,
		`{"id":1,"type":3,"data":{}}`,
		`{"id":1,"type":4,"data":{}}`,
		`{"id":1,"type":5}`,
		`{"id":1,"type":6,"data":"abc"}`,
		`{"id":1,"type":8,"data":42}`,
	}
	for _, data := range testcases {
		_, err := ParseText([]byte(data))
		if err == nil {
			t.Errorf("expected error for %s", data)
			continue
		}
		if _, ok := err.(*ProtocolError); !ok {
			t.Errorf("expected ProtocolError for %s, got %T", data, err)
		}
	}
}

func TestParseBinaryInvalid(t *testing.T) {
	if _, err := ParseBinary([]byte{1, 0, 0}); err == nil {
		t.Error("expected error for short frame")
	}
	if _, err := ParseBinary([]byte{1, 0, 0, 0, byte(TypeJSONRequest)}); err == nil {
		t.Error("expected error for non-stream binary type")
	}
}

func TestParseHTTPQueryFallback(t *testing.T) {
	u, err := url.Parse(`/dummy/sum?x-smcp&id=3&type=1&args=` + url.QueryEscape(`[1,2]`))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := ParseHTTP(nil, u, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := NewRequest(3, "/dummy/sum", json.RawMessage(`[1,2]`))
	if !reflect.DeepEqual(msg, want) {
		t.Errorf("got: %s; want: %s", msg, want)
	}

	// Body fields take precedence over the query.
	msg, err = ParseHTTP([]byte(`{"id":9,"type":1,"data":{"path":"/x/y","args":["a"]}}`), u, nil)
	if err != nil {
		t.Fatal(err)
	}
	want = NewRequest(9, "/x/y", json.RawMessage(`["a"]`))
	if !reflect.DeepEqual(msg, want) {
		t.Errorf("got: %s; want: %s", msg, want)
	}
}

func TestParseHTTPStreamData(t *testing.T) {
	u, _ := url.Parse("/?x-smcp&id=4&type=5")
	body := strings.NewReader("payload")
	msg, err := ParseHTTP(nil, u, body)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeStreamResponseData || msg.Body != body {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestMessageString(t *testing.T) {
	got, want := NewChunk(12, make([]byte, 64)).String(), `  12 StreamResponseChunk {"byteLength":64}`
	if got != want {
		t.Errorf("got: %q; want: %q", got, want)
	}
}
