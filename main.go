package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/message"
	"github.com/smcp-go/smcp/reload"
	"github.com/smcp-go/smcp/rpc"
	"github.com/smcp-go/smcp/session"
)

// Version of the binary, assigned during build.
var Version string = "dev"

var rpcTimeout = time.Second * 30

// Options contains the flag options
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version bool   `long:"version" description:"Print version and exit."`

	Serve struct {
		Bind          string        `long:"bind" description:"Address and port to listen on." default:"0.0.0.0:8080" env:"SMCP_BIND"`
		Public        string        `long:"public" description:"Directory of static files to serve for non-RPC requests."`
		Tokens        []string      `long:"token" description:"Allowed connection token. Can be repeated."`
		RequireToken  bool          `long:"require-token" description:"Reject connections without a token, even if no tokens are listed."`
		TokensFile    string        `long:"tokens-file" description:"File with one allowed token per line. Reloaded when it changes."`
		Store         string        `long:"store" description:"Session storage driver. (memory|badger)" default:"memory"`
		DataDir       string        `long:"datadir" description:"Path for storing the persistent session database."`
		SessionMaxAge time.Duration `long:"session-max-age" description:"Lifetime of an untouched session. Negative never expires." default:"2h"`
		GCInterval    time.Duration `long:"gc-interval" description:"How often expired sessions are collected." default:"5m"`
		TLSHost       string        `long:"tlshost" description:"Acquire an ACME TLS cert for this host (forces bind to :443)."`
		AllowOrigin   string        `long:"allow-origin" description:"Include Access-Control-Allow-Origin header for CORS."`
		MaxContent    string        `long:"max-content-length" description:"Size limit of RPC requests over HTTP, such as 10MiB. Unlimited when empty."`
		DisableHTTP   bool          `long:"disable-http" description:"Refuse RPC calls over plain HTTP."`
		DisableWS     bool          `long:"disable-ws" description:"Refuse WebSocket connections."`
		WS            string        `long:"ws" description:"WebSocket implementation. (gorilla|gobwas)" default:"gorilla"`
		Trace         bool          `long:"trace" description:"Log every message crossing the wire."`
	} `command:"serve" description:"Serve the demo API over WebSocket and HTTP."`

	Call struct {
		URL   string `long:"url" description:"Server URL, ws:// or http://." default:"ws://localhost:8080/" env:"SMCP_URL"`
		Token string `long:"token" description:"Connection token." env:"SMCP_TOKEN"`
		Args  struct {
			Path   string   `positional-arg-name:"path" description:"Call path, such as /dummy/returnString" required:"yes"`
			Params []string `positional-arg-name:"params" description:"JSON encoded arguments, or @filename to upload a file."`
		} `positional-args:"yes"`
	} `command:"call" description:"Call a method and print its result as JSON."`
}

const callUsage = `Examples:
* Call over WebSocket:
  $ smcp call --url ws://localhost:8080/ /dummy/returnString

* Upload a file and get its checksum:
  $ smcp call /dummy/returnChecksum '{"file":"@./README.md"}'

* Call over plain HTTP:
  $ smcp call --url http://localhost:8080/ /dummy/returnString
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

func subcommand(cmd string, options Options) error {
	switch cmd {
	case "serve":
		return runServe(options)
	case "call":
		return runCall(options, os.Stdout)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Println(err)
		}
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "call":
				exit(0, callUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		rpc.SetLogger(logWriter)
		session.SetLogger(logWriter)
		reload.SetLogger(logWriter)
	}

	cmd := "serve"
	if parser.Active != nil {
		cmd = parser.Active.Name
	}
	err = subcommand(cmd, options)
	if err == nil {
		return
	}

	if err == io.EOF {
		exit(3, "Connection closed.\n")
	}

	switch typedErr := err.(type) {
	case net.Error:
		err = ErrExplain{err, `Disconnected from server unexpectedly. Could be a connectivity issue or the server is down. Try again?`}
	case rpc.TransportError:
		err = ErrExplain{err, `Lost the connection to the server before the call finished.`}
	case rpc.HTTPRequestError:
		err = ErrExplain{err, `The server refused the request. Check the --url and --token values.`}
	case *message.ProtocolError:
		err = ErrExplain{err, `Received a malformed message. Make sure the server speaks the same protocol version.`}
	case *codec.RemoteError:
		err = ErrExplain{err, fmt.Sprintf(`The remote method failed with %s.`, typedErr.Name)}
	case ErrExplain:
		// All good.
	default:
		err = ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation.`, err)}
	}

	if err != nil {
		exit(2, "%s failed: %s\n", cmd, err)
	}
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}
