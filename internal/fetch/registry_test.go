package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubFetcher struct {
	name string
	out  Outcome
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Fetch(context.Context, string, time.Duration, Options) Outcome {
	return s.out
}

type stubShooter struct {
	stubFetcher
	png []byte
}

func (s *stubShooter) Screenshot(context.Context, string, time.Duration) ([]byte, error) {
	return s.png, nil
}

func TestRegistry_BuildsLazilyAndCaches(t *testing.T) {
	r := NewRegistry()
	builds := 0
	r.Register("stub", nil, func() (Fetcher, error) {
		builds++
		return &stubFetcher{name: "stub"}, nil
	})

	if builds != 0 {
		t.Fatalf("expected no build before first Get, got %d", builds)
	}

	first, ok := r.Get("stub")
	if !ok {
		t.Fatalf("expected fetcher")
	}
	second, ok := r.Get("stub")
	if !ok {
		t.Fatalf("expected cached fetcher")
	}
	if builds != 1 {
		t.Fatalf("expected a single build, got %d", builds)
	}
	if first != second {
		t.Fatalf("expected the cached instance on second Get")
	}
}

func TestRegistry_UnavailablePredicate(t *testing.T) {
	r := NewRegistry()
	r.Register("browser", func() bool { return false }, func() (Fetcher, error) {
		t.Fatalf("factory must not run for unavailable backend")
		return nil, nil
	})

	if r.Available("browser") {
		t.Fatalf("expected unavailable")
	}
	if _, ok := r.Get("browser"); ok {
		t.Fatalf("expected Get to fail for unavailable backend")
	}
}

func TestRegistry_FactoryFailureIsUnavailable(t *testing.T) {
	r := NewRegistry()
	r.Register("flaky", nil, func() (Fetcher, error) {
		return nil, errors.New("no backend")
	})

	if _, ok := r.Get("flaky"); ok {
		t.Fatalf("expected failed factory to yield no fetcher")
	}
}

func TestRegistry_UnknownName(t *testing.T) {
	r := NewRegistry()
	if r.Available("nope") {
		t.Fatalf("expected unknown name to be unavailable")
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatalf("expected Get to fail for unknown name")
	}
}

func TestRegistry_FirstScreenshotterFollowsOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("plain", nil, func() (Fetcher, error) {
		return &stubFetcher{name: "plain"}, nil
	})
	shooter := &stubShooter{stubFetcher: stubFetcher{name: "shooter"}, png: []byte("png")}
	r.Register("shooter", nil, func() (Fetcher, error) { return shooter, nil })

	got, ok := r.FirstScreenshotter([]string{"plain", "shooter"})
	if !ok {
		t.Fatalf("expected a screenshotter")
	}
	if got != Screenshotter(shooter) {
		t.Fatalf("expected the shooter instance")
	}

	if _, ok := r.FirstScreenshotter([]string{"plain"}); ok {
		t.Fatalf("expected no screenshotter among plain fetchers")
	}
}

func TestNewDefaultRegistry_BrowserGating(t *testing.T) {
	r := NewDefaultRegistry("test-agent", "", false)
	if r.Available(MethodBrowser) {
		t.Fatalf("expected browser unavailable when disabled")
	}
	if !r.Available(MethodHTTP) || !r.Available(MethodCollector) {
		t.Fatalf("expected http and collector always available")
	}

	enabled := NewDefaultRegistry("test-agent", "ws://127.0.0.1:7317", true)
	if !enabled.Available(MethodBrowser) {
		t.Fatalf("expected browser available when enabled")
	}
}
