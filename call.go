package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/rpc"
	"github.com/smcp-go/smcp/rpc/ws/gorilla"
)

// parseParam decodes a JSON argument. Strings of the form "@path", at any
// depth, are replaced by the file at path.
func parseParam(raw string) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		if strings.HasPrefix(raw, "@") {
			return codec.OpenFile(raw[1:])
		}
		return nil, fmt.Errorf("invalid JSON argument %q: %s", raw, err)
	}
	return openFiles(v)
}

func openFiles(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case string:
		if strings.HasPrefix(v, "@") {
			return codec.OpenFile(v[1:])
		}
	case map[string]interface{}:
		for k, item := range v {
			opened, err := openFiles(item)
			if err != nil {
				return nil, err
			}
			v[k] = opened
		}
	case []interface{}:
		for i, item := range v {
			opened, err := openFiles(item)
			if err != nil {
				return nil, err
			}
			v[i] = opened
		}
	}
	return v, nil
}

// newService picks the transport from the URL scheme.
func newService(endpoint string, token string) (rpc.Service, func() error, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, err
	}
	switch u.Scheme {
	case "ws", "wss":
		c := rpc.NewClient(endpoint, gorilla.Dialer{}, rpc.ClientOptions{Token: token})
		return c, c.Close, nil
	case "http", "https":
		c := rpc.NewHTTPClient(endpoint)
		c.Token = token
		return c, func() error { return nil }, nil
	}
	return nil, nil, errors.New("unsupported url scheme: " + u.Scheme)
}

func runCall(options Options, w io.Writer) error {
	params := make([]interface{}, 0, len(options.Call.Args.Params))
	for _, raw := range options.Call.Args.Params {
		p, err := parseParam(raw)
		if err != nil {
			return err
		}
		params = append(params, p)
	}

	service, closer, err := newService(options.Call.URL, options.Call.Token)
	if err != nil {
		return err
	}
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	logger.Debugf("Calling %s on %s", options.Call.Args.Path, options.Call.URL)
	var result interface{}
	if err := service.Call(ctx, &result, options.Call.Args.Path, params...); err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}
