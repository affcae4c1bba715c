package gobwas

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smcp-go/smcp/internal/dummy"
	"github.com/smcp-go/smcp/rpc"
)

func TestFrames(t *testing.T) {
	c1, c2 := net.Pipe()

	client := clientConn(c1, nil)
	server := serverConn(c2, nil)

	go client.WriteFrame([]byte(`{"id":1}`), false)
	data, binary, err := server.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"id":1}` || binary {
		t.Errorf("wrong frame: %q %v", data, binary)
	}

	go server.WriteFrame([]byte{1, 0, 0, 0, 7}, true)
	data, binary, err = client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 5 || !binary {
		t.Errorf("wrong frame: %v %v", data, binary)
	}
}

func TestServer(t *testing.T) {
	srv := rpc.NewServer(dummy.API(), nil)
	srv.Upgrader = &Upgrader{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := rpc.NewClient("ws"+strings.TrimPrefix(ts.URL, "http"), Dialer{}, rpc.ClientOptions{})
	defer c.Close()
	client := dummy.Client{Service: c}

	got, err := client.ReturnString(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := "hello world"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}
