package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const callbackPage = `<!DOCTYPE html>
<html><body><p>%s</p><p>You can close this window.</p></body></html>`

// CallbackReceiver listens on the loopback redirect URI and hands the first
// callback request to a handler.
type CallbackReceiver struct {
	addr   string
	path   string
	logger *zap.Logger

	bound net.Addr
}

// NewCallbackReceiver creates a receiver for redirectURL, which must be an
// http loopback address such as http://127.0.0.1:52539/callback.
func NewCallbackReceiver(redirectURL string, logger *zap.Logger) (*CallbackReceiver, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect url: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect url %q is not a loopback http address", redirectURL)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &CallbackReceiver{addr: u.Host, path: path, logger: logger}, nil
}

// Addr returns the bound address once Listen has succeeded.
func (c *CallbackReceiver) Addr() string {
	if c.bound == nil {
		return c.addr
	}
	return c.bound.String()
}

// Listen binds the callback address. The returned function waits for one
// callback, passes it to handle and shuts the listener down. Call it before
// sending the browser to the provider.
func (c *CallbackReceiver) Listen(handle func(ctx context.Context, callback *url.URL) error) (wait func(ctx context.Context) error, err error) {
	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", c.addr, err)
	}
	c.bound = ln.Addr()

	done := make(chan error, 1)
	r := mux.NewRouter()
	r.HandleFunc(c.path, func(w http.ResponseWriter, req *http.Request) {
		err := handle(req.Context(), req.URL)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, callbackPage, "Login failed.")
		} else {
			fmt.Fprintf(w, callbackPage, "Login complete.")
		}
		select {
		case done <- err:
		default:
		}
	}).Methods(http.MethodGet)

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Warn("callback listener stopped", zap.Error(err))
		}
	}()

	return func(ctx context.Context) error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}
