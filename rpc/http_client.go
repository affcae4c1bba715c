package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"

	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/message"
)

const httpContentType = "application/json"

var _ Service = &HTTPClient{}

// NewHTTPClient returns a client making one POST request per call. Session
// cookies are kept in a cookie jar.
func NewHTTPClient(endpoint string) *HTTPClient {
	jar, _ := cookiejar.New(nil)
	return &HTTPClient{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Jar: jar},
		handlers:   codec.Combine(nil),
	}
}

// HTTPClient calls a Server over plain HTTP. Callbacks and streams need a
// persistent connection and are rejected with ErrUnsupportedOverHTTP.
type HTTPClient struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
	// MaxContentLength is the response size limit (optional)
	MaxContentLength int64

	handlers []codec.Handler
	id       uint32
}

// SetHandlers sets the caller's codec handlers. The built-in handlers are
// appended.
func (service *HTTPClient) SetHandlers(handlers []codec.Handler) {
	service.handlers = codec.Combine(handlers)
}

func (service *HTTPClient) Call(ctx context.Context, result interface{}, path string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := codec.Encode(params, service.handlers)
	if err != nil {
		return err
	}
	if len(payload.Callbacks) > 0 || len(payload.Streams) > 0 {
		return ErrUnsupportedOverHTTP
	}
	args, err := payload.MarshalObject()
	if err != nil {
		return err
	}
	id := atomic.AddUint32(&service.id, 1)
	body, _, err := message.Serialize(message.NewRequest(id, path, args))
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, service.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", httpContentType)
	req.Header.Set("Accept", httpContentType)
	req.Header.Set(MarkerKey, "1")
	if service.Token != "" {
		req.Header.Set(TokenKey, service.Token)
	}
	req = req.WithContext(ctx)

	resp, err := service.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if service.MaxContentLength > 0 {
		if resp.ContentLength > service.MaxContentLength {
			return HTTPRequestError{
				Response: resp,
				Reason:   "response too large",
			}
		}
		r = io.LimitReader(resp.Body, service.MaxContentLength)
	}
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}

	// Application errors come back as 400 with a response message.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return HTTPRequestError{
			Response: resp,
			Reason:   fmt.Sprintf("bad status code: %d", resp.StatusCode),
		}
	}
	msg, err := message.ParseText(data)
	if err != nil {
		if resp.StatusCode == http.StatusBadRequest {
			return HTTPRequestError{
				Response: resp,
				Reason:   string(bytes.TrimSpace(data)),
			}
		}
		return err
	}
	if msg.Type != message.TypeJSONResponse || msg.ID != id {
		return HTTPRequestError{
			Response: resp,
			Reason:   fmt.Sprintf("unexpected response message: %s", msg),
		}
	}
	decoded, err := decodeResponse(msg.Result, service.handlers)
	if err != nil {
		return err
	}
	return assignResult(result, decoded)
}
