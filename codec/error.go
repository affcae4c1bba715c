package codec

import (
	"encoding/json"
	"reflect"
)

// RemoteError is the decoded form of an error raised by the peer.
type RemoteError struct {
	Message string
	Name    string
	// Props holds the remaining encoded properties of the original error.
	Props map[string]interface{}
}

func (err *RemoteError) Error() string {
	return err.Message
}

// ErrorHandler carries error values as tagged references with their message,
// type name and exported fields. The zero value handles every error and
// decodes to *RemoteError.
type ErrorHandler struct {
	// Match restricts the handler to some errors. Nil matches all errors.
	Match func(err error) bool
	// New rebuilds an error from its message. When it returns a pointer,
	// the encoded properties are unmarshalled into it. Nil decodes to
	// *RemoteError.
	New func(message string) error
}

func (h ErrorHandler) Test(v interface{}) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	return h.Match == nil || h.Match(err)
}

func (h ErrorHandler) Encode(v interface{}) (interface{}, error) {
	err := v.(error)
	props := map[string]interface{}{}

	if remote, ok := err.(*RemoteError); ok {
		for k, prop := range remote.Props {
			props[k] = prop
		}
		props["name"] = remote.Name
	} else {
		// Exported fields of the concrete error, if it serializes to an object.
		if data, mErr := json.Marshal(err); mErr == nil {
			_ = json.Unmarshal(data, &props)
		}
		props["name"] = reflect.TypeOf(err).String()
	}
	props["message"] = err.Error()
	return props, nil
}

func (h ErrorHandler) Decode(encoded json.RawMessage, extra Extra) (interface{}, error) {
	props := map[string]interface{}{}
	if err := json.Unmarshal(encoded, &props); err != nil {
		return nil, err
	}
	message, _ := props["message"].(string)
	name, _ := props["name"].(string)

	if h.New != nil {
		e := h.New(message)
		if reflect.ValueOf(e).Kind() == reflect.Ptr {
			_ = json.Unmarshal(encoded, e)
		}
		return e, nil
	}

	delete(props, "message")
	delete(props, "name")
	return &RemoteError{
		Message: message,
		Name:    name,
		Props:   props,
	}, nil
}
