package launcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// freeRedirectURL returns a loopback callback URL on a port nothing listens on.
func freeRedirectURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return "http://" + addr + "/callback"
}

func TestLoopback_ReturnsRedirect(t *testing.T) {
	redirectURL := freeRedirectURL(t)
	l := NewLoopback(LoopbackConfig{
		Open: func(authURL string) error {
			go func() {
				resp, err := http.Get(redirectURL + "?code=abc&state=xyz")
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	})

	got, err := l.Launch(context.Background(), "github", "https://github.com/login/oauth/authorize", redirectURL)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if !strings.HasPrefix(got, redirectURL) || !strings.Contains(got, "code=abc") || !strings.Contains(got, "state=xyz") {
		t.Errorf("unexpected redirect %q", got)
	}
}

func TestLoopback_TimeoutIsCancellation(t *testing.T) {
	l := NewLoopback(LoopbackConfig{Timeout: 20 * time.Millisecond})

	_, err := l.Launch(context.Background(), "github", "https://example.com", freeRedirectURL(t))
	if !domain.IsCancelled(err) {
		t.Errorf("expected cancelled authentication, got %v", err)
	}
}

func TestLoopback_ContextCancelled(t *testing.T) {
	l := NewLoopback(LoopbackConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Launch(ctx, "gitlab", "https://example.com", freeRedirectURL(t))
	if !domain.IsCancelled(err) {
		t.Errorf("expected cancelled authentication, got %v", err)
	}
}

func TestLoopback_RejectsNonLoopbackRedirect(t *testing.T) {
	l := NewLoopback(LoopbackConfig{})

	_, err := l.Launch(context.Background(), "github", "https://example.com", "https://marks.example.com/callback")
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}
