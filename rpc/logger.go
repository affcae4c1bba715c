package rpc

import (
	"io"
	"io/ioutil"
	"log"

	"github.com/smcp-go/smcp/internal/pretty"
	"github.com/smcp-go/smcp/message"
)

// traceLimit is the length at which traced messages are cut.
const traceLimit = 1024

var logger *log.Logger

// SetLogger overrides the logger output for this package.
func SetLogger(w io.Writer) {
	flags := log.Flags()
	prefix := "[rpc] "
	logger = log.New(w, prefix, flags)
}

func init() {
	SetLogger(ioutil.Discard)
}

const (
	sideClient = "C"
	sideServer = "S"
)

// trace logs a message crossing the wire, e.g. "[C] > |    1 JsonRequest {...}".
func trace(side string, sent bool, msg *message.Message) {
	dir := "<"
	if sent {
		dir = ">"
	}
	logger.Printf("[%s] %s | %s", side, dir, pretty.Abbrev(msg.String(), traceLimit))
}
