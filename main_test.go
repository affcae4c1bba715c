package main

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/rpc"
)

func testOptions() Options {
	options := Options{}
	options.Serve.Store = "memory"
	options.Serve.WS = "gorilla"
	options.Serve.SessionMaxAge = time.Hour
	options.Serve.GCInterval = time.Minute
	return options
}

func startServer(t *testing.T, options Options) *httptest.Server {
	t.Helper()
	srv, sessions, err := buildServer(options)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		sessions.Store.Close()
	})
	return ts
}

func TestReadTokens(t *testing.T) {
	got, err := readTokens(strings.NewReader("a\n\n  b  \n# comment\nc"))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want %q", got, want)
	}
}

func TestParseParam(t *testing.T) {
	dir, err := ioutil.TempDir("", "smcp-main")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "data.txt")
	if err := ioutil.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := parseParam(`{"file":"@` + path + `","n":1}`)
	if err != nil {
		t.Fatal(err)
	}
	m := p.(map[string]interface{})
	f, ok := m["file"].(*codec.File)
	if !ok {
		t.Fatalf("file is %T", m["file"])
	}
	if f.Name != "data.txt" || f.Size != 5 {
		t.Errorf("wrong file: %q %d", f.Name, f.Size)
	}
	if m["n"] != float64(1) {
		t.Errorf("got: %v; want 1", m["n"])
	}

	if _, err := parseParam("@" + path); err != nil {
		t.Errorf("bare @path: %s", err)
	}
	if _, err := parseParam("{nope"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestRunCall(t *testing.T) {
	ts := startServer(t, testOptions())

	for _, endpoint := range []string{
		"ws" + strings.TrimPrefix(ts.URL, "http"),
		ts.URL,
	} {
		options := testOptions()
		options.Call.URL = endpoint
		options.Call.Args.Path = "/dummy/returnString"

		var buf bytes.Buffer
		if err := runCall(options, &buf); err != nil {
			t.Fatalf("%s: %s", endpoint, err)
		}
		if got, want := buf.String(), "\"hello world\"\n"; got != want {
			t.Errorf("%s: got: %q; want %q", endpoint, got, want)
		}
	}
}

func TestRunCallUpload(t *testing.T) {
	ts := startServer(t, testOptions())

	dir, err := ioutil.TempDir("", "smcp-main")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "data.txt")
	if err := ioutil.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	options := testOptions()
	options.Call.URL = "ws" + strings.TrimPrefix(ts.URL, "http")
	options.Call.Args.Path = "/dummy/returnChecksum"
	options.Call.Args.Params = []string{`{"file":"@` + path + `"}`}

	var buf bytes.Buffer
	if err := runCall(options, &buf); err != nil {
		t.Fatal(err)
	}
	// sha1("hello")
	if got, want := buf.String(), "\"aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d\"\n"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}

func TestRunCallToken(t *testing.T) {
	serveOpts := testOptions()
	serveOpts.Serve.Tokens = []string{"secret"}
	ts := startServer(t, serveOpts)

	options := testOptions()
	options.Call.URL = ts.URL
	options.Call.Args.Path = "/dummy/returnString"
	err := runCall(options, ioutil.Discard)
	if _, ok := err.(rpc.HTTPRequestError); !ok {
		t.Errorf("got: %v (%T); want HTTPRequestError", err, err)
	}

	options.Call.Token = "secret"
	if err := runCall(options, ioutil.Discard); err != nil {
		t.Error(err)
	}
}

func TestBuildServer(t *testing.T) {
	options := testOptions()
	options.Serve.WS = "nope"
	if _, _, err := buildServer(options); err == nil {
		t.Error("expected error for unknown websocket implementation")
	}

	options = testOptions()
	options.Serve.Store = "nope"
	if _, _, err := buildServer(options); err == nil {
		t.Error("expected error for unknown store")
	}

	options = testOptions()
	options.Serve.DisableHTTP = true
	options.Serve.TokensFile = filepath.Join(os.TempDir(), "smcp-missing-tokens")
	if _, _, err := buildServer(options); err == nil {
		t.Error("expected error for missing tokens file")
	}
}

func TestHeaderWrapper(t *testing.T) {
	h := &server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}),
		header: http.Header{},
	}
	h.header.Set("Access-Control-Allow-Origin", "*")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("got: %q; want %q", got, "*")
	}
	if rec.Body.String() != "ok" {
		t.Errorf("got: %q; want ok", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("got: %d; want %d", rec.Code, http.StatusNoContent)
	}
}
