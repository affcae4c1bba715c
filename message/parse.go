package message

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net/url"
)

// Parse decodes a frame received from a persistent connection.
func Parse(data []byte, binary bool) (*Message, error) {
	if binary {
		return ParseBinary(data)
	}
	return ParseText(data)
}

// ParseBinary decodes a binary stream frame. Only StreamResponseChunk and
// StreamResponseEnd are valid binary types.
func ParseBinary(data []byte) (*Message, error) {
	if len(data) < headerSize {
		return nil, protocolErrorf("binary frame too short: %d bytes", len(data))
	}
	msg := &Message{
		ID:   binary.LittleEndian.Uint32(data),
		Type: Type(data[4]),
	}
	switch msg.Type {
	case TypeStreamResponseChunk:
		msg.Chunk = make([]byte, len(data)-headerSize)
		copy(msg.Chunk, data[headerSize:])
	case TypeStreamResponseEnd:
	default:
		return nil, &ProtocolError{ID: msg.ID, Reason: "invalid binary message type: " + msg.Type.String()}
	}
	return msg, nil
}

// ParseText decodes and validates a JSON text message.
func ParseText(data []byte) (*Message, error) {
	return parseText(data, nil, nil)
}

// ParseHTTP decodes a message received over plain HTTP. Fields missing from
// the body are taken from the request URL: "id" and "type" from the query,
// the request path from the URL path and "args" from the JSON-encoded query
// value. An empty body is treated as "{}", which allows link-style calls such
// as GET /dummy/returnString?x-smcp&id=1&type=1. The stream is used as the
// body of a StreamResponseData message.
func ParseHTTP(body []byte, u *url.URL, stream io.Reader) (*Message, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}
	return parseText(body, u, stream)
}

type rawEnvelope struct {
	ID   json.RawMessage `json:"id"`
	Type json.RawMessage `json:"type"`
	Data json.RawMessage `json:"data"`
}

func parseText(data []byte, u *url.URL, stream io.Reader) (*Message, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, protocolErrorf("invalid JSON message: %s", err)
	}

	var query url.Values
	if u != nil {
		query = u.Query()
		if isNull(env.ID) {
			if id := query.Get("id"); id != "" {
				env.ID = json.RawMessage(id)
			}
		}
		if isNull(env.Type) {
			if t := query.Get("type"); t != "" {
				env.Type = json.RawMessage(t)
			}
		}
	}

	msg := &Message{}
	if isNull(env.ID) || json.Unmarshal(env.ID, &msg.ID) != nil {
		return nil, protocolErrorf("invalid message id: %s", env.ID)
	}
	var t uint8
	if isNull(env.Type) || json.Unmarshal(env.Type, &t) != nil || !Type(t).Valid() {
		return nil, &ProtocolError{ID: msg.ID, Reason: "invalid message type: " + string(env.Type)}
	}
	msg.Type = Type(t)

	var err error
	switch msg.Type {
	case TypeJSONRequest:
		msg.Request, err = parseRequest(env.Data, u, query)
	case TypeJSONResponseCallback:
		msg.Callback, err = parseCallback(env.Data)
	case TypeJSONResponse:
		msg.Result, err = parseResult(env.Data)
	case TypeStreamRequest:
		msg.Stream, err = parseStreamIndex(env.Data)
	case TypeStreamResponseData:
		if stream == nil {
			err = protocolErrorf("invalid stream object")
		}
		msg.Body = stream
	case TypeStreamResponseChunk, TypeStreamResponseEnd:
		err = protocolErrorf("%s must be sent as a binary frame", msg.Type)
	case TypeSessionRequest, TypeSessionResponse:
		msg.Session, err = parseSession(env.Data)
	}
	if err != nil {
		if perr, ok := err.(*ProtocolError); ok {
			perr.ID = msg.ID
		}
		return nil, err
	}
	return msg, nil
}

func parseRequest(data json.RawMessage, u *url.URL, query url.Values) (*Request, error) {
	var req struct {
		Path *string         `json:"path"`
		Args json.RawMessage `json:"args"`
	}
	if !isNull(data) {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, protocolErrorf("invalid request data: %s", err)
		}
	} else if u == nil {
		return nil, protocolErrorf("missing request data")
	}
	if u != nil {
		if req.Path == nil || *req.Path == "" {
			path := u.Path
			req.Path = &path
		}
		if isNull(req.Args) {
			if args := query.Get("args"); args != "" {
				req.Args = json.RawMessage(args)
			}
		}
	}
	if req.Path == nil {
		return nil, protocolErrorf("invalid request path")
	}
	if isNull(req.Args) {
		req.Args = json.RawMessage("[]")
	} else if !isArray(req.Args) || !json.Valid(req.Args) {
		return nil, protocolErrorf("invalid request args: %s", req.Args)
	}
	return &Request{Path: *req.Path, Args: req.Args}, nil
}

func parseCallback(data json.RawMessage) (*Callback, error) {
	var cb struct {
		Index *int            `json:"index"`
		Args  json.RawMessage `json:"args"`
	}
	if isNull(data) || json.Unmarshal(data, &cb) != nil {
		return nil, protocolErrorf("invalid callback data: %s", data)
	}
	if cb.Index == nil {
		return nil, protocolErrorf("invalid callback index")
	}
	if !isArray(cb.Args) {
		return nil, protocolErrorf("invalid callback args: %s", cb.Args)
	}
	return &Callback{Index: *cb.Index, Args: cb.Args}, nil
}

func parseResult(data json.RawMessage) (json.RawMessage, error) {
	var pair []json.RawMessage
	if isNull(data) || json.Unmarshal(data, &pair) != nil || len(pair) != 2 {
		return nil, protocolErrorf("response data is not an [error, data] pair: %s", data)
	}
	return data, nil
}

func parseStreamIndex(data json.RawMessage) (*StreamIndex, error) {
	var s struct {
		Index *int `json:"index"`
	}
	if isNull(data) || json.Unmarshal(data, &s) != nil || s.Index == nil {
		return nil, protocolErrorf("invalid stream index: %s", data)
	}
	return &StreamIndex{Index: *s.Index}, nil
}

func parseSession(data json.RawMessage) (*string, error) {
	if isNull(data) {
		return nil, nil
	}
	var session string
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, protocolErrorf("invalid session: %s", data)
	}
	return &session, nil
}
