// Package dummy is a small API used to exercise the transport end to end.
package dummy

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"

	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/rpc"
)

// Namespace is the path segment the API is served under.
const Namespace = "dummy"

// API returns the API surface with DummyAPI under Namespace.
func API() rpc.API {
	return rpc.API{
		Namespace: rpc.Constructor(func() interface{} { return &DummyAPI{} }),
	}
}

// DummyAPI has one method per kind of value the transport carries.
type DummyAPI struct{}

func (*DummyAPI) ReturnString() string {
	return "hello world"
}

// ReturnError returns an error as a result value, not as a failure.
func (*DummyAPI) ReturnError() interface{} {
	return errors.New("returnError")
}

func (*DummyAPI) ThrowError() error {
	return errors.New("throwError")
}

// CallbackOptions carries the progress callback of Callback.
type CallbackOptions struct {
	OnProgress func(value int) error `json:"onProgress"`
}

// Callback reports progress 10, 50 and 90, then returns 100.
func (*DummyAPI) Callback(opts CallbackOptions) (int, error) {
	if opts.OnProgress != nil {
		for _, v := range []int{10, 50, 90} {
			if err := opts.OnProgress(v); err != nil {
				return 0, err
			}
		}
	}
	return 100, nil
}

// ChecksumRequest carries the file to hash.
type ChecksumRequest struct {
	File *codec.File `json:"file"`
}

// Checksum is the sha1 digest of a file and the number of bytes read.
type Checksum struct {
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
}

func sum(ctx context.Context, f *codec.File) (*Checksum, error) {
	if f == nil {
		return nil, errors.New("file is required")
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	h := sha1.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return nil, err
	}
	return &Checksum{SHA1: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// ReturnChecksum returns the hex sha1 of the uploaded file.
func (*DummyAPI) ReturnChecksum(ctx context.Context, req ChecksumRequest) (string, error) {
	c, err := sum(ctx, req.File)
	if err != nil {
		return "", err
	}
	return c.SHA1, nil
}

// Stat returns the sha1 and size of the uploaded file.
func (*DummyAPI) Stat(ctx context.Context, req ChecksumRequest) (*Checksum, error) {
	return sum(ctx, req.File)
}

// Client is a typed client of DummyAPI.
type Client struct {
	rpc.Service
}

func path(method string) string {
	return rpc.Path(Namespace, method)
}

func (c *Client) ReturnString(ctx context.Context) (string, error) {
	var result string
	err := c.Call(ctx, &result, path("returnString"))
	return result, err
}

func (c *Client) ReturnError(ctx context.Context) (error, error) {
	var result error
	err := c.Call(ctx, &result, path("returnError"))
	return result, err
}

func (c *Client) ThrowError(ctx context.Context) error {
	return c.Call(ctx, nil, path("throwError"))
}

func (c *Client) Callback(ctx context.Context, onProgress func(value int)) (int, error) {
	var result int
	opts := map[string]interface{}{
		"onProgress": onProgress,
	}
	err := c.Call(ctx, &result, path("callback"), opts)
	return result, err
}

func (c *Client) ReturnChecksum(ctx context.Context, f *codec.File) (string, error) {
	var result string
	err := c.Call(ctx, &result, path("returnChecksum"), ChecksumRequest{File: f})
	return result, err
}

func (c *Client) Stat(ctx context.Context, f *codec.File) (*Checksum, error) {
	var result Checksum
	if err := c.Call(ctx, &result, path("stat"), ChecksumRequest{File: f}); err != nil {
		return nil, err
	}
	return &result, nil
}
