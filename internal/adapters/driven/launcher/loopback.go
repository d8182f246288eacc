package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AuthLauncher = (*Loopback)(nil)

const callbackPage = `<!doctype html><title>sercha-marks</title><p>%s You can close this window.</p>`

// Opener presents the authorization URL to the user, e.g. by starting a browser.
type Opener func(authURL string) error

// LoopbackConfig holds configuration for Loopback
type LoopbackConfig struct {
	// Open presents the URL. Nil only logs it.
	Open Opener
	// Timeout bounds how long the user has to finish. Zero means 5 minutes.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Loopback listens on the redirect URL's host and port and waits for the
// source to redirect the browser back.
type Loopback struct {
	open    Opener
	timeout time.Duration
	logger  *slog.Logger
}

// NewLoopback creates a new loopback launcher.
func NewLoopback(cfg LoopbackConfig) *Loopback {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Loopback{open: cfg.Open, timeout: timeout, logger: logger}
}

// Launch opens authURL and blocks until a request arrives on the redirect
// path, the timeout passes or ctx is cancelled. Timeouts and cancellation
// are reported as a cancelled authentication.
func (l *Loopback) Launch(ctx context.Context, providerID, authURL, redirectURL string) (string, error) {
	redirect, err := url.Parse(redirectURL)
	if err != nil {
		return "", domain.NewConfigurationError(providerID, fmt.Sprintf("invalid redirect url: %v", err))
	}
	if redirect.Scheme != "http" || !isLoopback(redirect.Hostname()) {
		return "", domain.NewConfigurationError(providerID, "redirect url must be http on a loopback host")
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", redirect.Host, err)
	}

	received := make(chan string, 1)
	mux := http.NewServeMux()
	path := redirect.Path
	if path == "" {
		path = "/"
	}
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		full := *redirect
		full.RawQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		msg := "Authorization complete."
		if r.URL.Query().Get("error") != "" {
			msg = "Authorization was not granted."
		}
		fmt.Fprintf(w, callbackPage, msg)
		select {
		case received <- full.String():
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("loopback listener failed", "provider_id", providerID, "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	l.logger.Info("open this URL to authorize", "provider_id", providerID, "url", authURL)
	if l.open != nil {
		if err := l.open(authURL); err != nil {
			l.logger.Warn("failed to open browser", "provider_id", providerID, "error", err)
		}
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case u := <-received:
		return u, nil
	case <-timer.C:
		return "", &domain.AuthenticationError{ProviderID: providerID, Cancelled: true, Err: errors.New("timed out waiting for authorization")}
	case <-ctx.Done():
		return "", &domain.AuthenticationError{ProviderID: providerID, Cancelled: true, Err: ctx.Err()}
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
