package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/OpenPeeDeeP/xdg"
	"golang.org/x/crypto/acme/autocert"

	"github.com/smcp-go/smcp/internal/dummy"
	"github.com/smcp-go/smcp/internal/pretty"
	"github.com/smcp-go/smcp/reload"
	"github.com/smcp-go/smcp/rpc"
	"github.com/smcp-go/smcp/rpc/ws/gobwas"
	"github.com/smcp-go/smcp/rpc/ws/gorilla"
	"github.com/smcp-go/smcp/session"
	badgerStore "github.com/smcp-go/smcp/session/badger"
	"github.com/smcp-go/smcp/session/memory"
)

// findDataDir returns a valid data dir, will create it if it doesn't
// exist.
func findDataDir(overridePath string) (string, error) {
	path := overridePath
	if path == "" {
		path = xdg.New("smcp", "server").DataHome()
	}
	err := os.MkdirAll(path, 0700)
	return path, err
}

// loadTokens reads one token per line. Blank lines and lines starting with #
// are skipped.
func loadTokens(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readTokens(f)
}

func readTokens(r io.Reader) ([]string, error) {
	tokens := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	return tokens, scanner.Err()
}

func openStore(options Options) (session.Store, error) {
	switch options.Serve.Store {
	case "memory":
		return memory.New(), nil
	case "persist":
		fallthrough
	case "badger":
		dir, err := findDataDir(options.Serve.DataDir)
		if err != nil {
			return nil, err
		}
		store, err := badgerStore.Open(badgerStore.OptionsFromEnv(dir))
		if err != nil {
			return nil, err
		}
		logger.Infof("Persistent session store using badger backend: %s", dir)
		return store, nil
	}
	return nil, errors.New("storage driver not implemented")
}

func newUpgrader(name string) (rpc.Upgrader, error) {
	switch name {
	case "gorilla":
		return &gorilla.Upgrader{}, nil
	case "gobwas":
		return &gobwas.Upgrader{}, nil
	}
	return nil, errors.New("websocket implementation not supported: " + name)
}

// buildServer assembles the demo server from the serve options. The
// returned manager's store must be closed by the caller.
func buildServer(options Options) (*rpc.Server, *session.Manager, error) {
	tokens := append([]string{}, options.Serve.Tokens...)
	if options.Serve.TokensFile != "" {
		fromFile, err := loadTokens(options.Serve.TokensFile)
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, fromFile...)
	}

	var maxContent int64
	if options.Serve.MaxContent != "" {
		var err error
		maxContent, err = pretty.ParseSize(options.Serve.MaxContent)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Limiting HTTP requests to %s", pretty.Size(maxContent))
	}

	upgrader, err := newUpgrader(options.Serve.WS)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(options)
	if err != nil {
		return nil, nil, err
	}

	sessionOpts := session.DefaultOptions()
	sessionOpts.MaxAge = options.Serve.SessionMaxAge
	sessionOpts.GCInterval = options.Serve.GCInterval
	sessions := session.NewManager(store, nil, &sessionOpts)

	srv := rpc.NewServer(dummy.API(), &rpc.Options{
		Logging:      options.Serve.Trace,
		PublicDir:    options.Serve.Public,
		Tokens:       tokens,
		RequireToken: options.Serve.RequireToken,
		Protocols: rpc.Protocols{
			HTTP: !options.Serve.DisableHTTP,
			WS:   !options.Serve.DisableWS,
		},
		MaxContentLength: maxContent,
	})
	srv.Upgrader = upgrader
	srv.Sessions = sessions
	return srv, sessions, nil
}

// watchTokens swaps the server's allow-list whenever the tokens file
// changes. The --token values are kept.
func watchTokens(ctx context.Context, srv *rpc.Server, options Options) {
	w := &reload.Watcher{
		Paths: []string{options.Serve.TokensFile},
		OnChange: func(path string) {
			fromFile, err := loadTokens(path)
			if err != nil {
				logger.Warningf("Failed to reload tokens from %s: %s", path, err)
				return
			}
			tokens := append(append([]string{}, options.Serve.Tokens...), fromFile...)
			srv.Apply(rpc.OptionsUpdate{Tokens: tokens})
			logger.Infof("Reloaded %d tokens from %s (options version %d)", len(fromFile), path, srv.Version())
		},
	}
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		logger.Warningf("Tokens file watcher stopped: %s", err)
	}
}

func runServe(options Options) error {
	srv, sessions, err := buildServer(options)
	if err != nil {
		return err
	}
	defer sessions.Store.Close()

	if err := sessions.StartGC(); err != nil {
		logger.Warningf("Session garbage collection disabled: %s", err)
	}
	defer sessions.StopGC()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if options.Serve.TokensFile != "" {
		go watchTokens(ctx, srv, options)
	}

	handler := &server{
		Handler: srv,
		header:  http.Header{},
	}
	if options.Serve.AllowOrigin != "" {
		handler.header.Set("Access-Control-Allow-Origin", options.Serve.AllowOrigin)
	}

	if options.Serve.TLSHost != "" {
		if !strings.HasSuffix(options.Serve.Bind, ":443") {
			logger.Warningf("Ignoring --bind value (%q) because it's not 443 and --tlshost is set.", options.Serve.Bind)
		}
		logger.Infof("Starting smcp server (version %s), acquiring ACME certificate and listening on: https://%s", Version, options.Serve.TLSHost)
		err := http.Serve(autocert.NewListener(options.Serve.TLSHost), handler)
		if strings.HasSuffix(err.Error(), "bind: permission denied") {
			err = ErrExplain{err, "Serving with autocert requires CAP_NET_BIND_SERVICE capability permission to bind on low-numbered ports. See: https://superuser.com/questions/710253/allow-non-root-process-to-bind-to-port-80-and-443/892391"}
		}
		return err
	}

	httpServer := &http.Server{
		Addr:    options.Serve.Bind,
		Handler: handler,
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Shutting down...")
			httpServer.Shutdown(context.Background())
		case <-ctx.Done():
		}
	}()

	logger.Infof("Starting smcp server (version %s), listening on: %s", Version, options.Serve.Bind)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
