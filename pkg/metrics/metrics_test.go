package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sternrassler/storefront-client/pkg/cache"
	_ "github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/metrics"
	_ "github.com/Sternrassler/storefront-client/pkg/proxy"
	_ "github.com/Sternrassler/storefront-client/pkg/session"
)

func TestRegistry(t *testing.T) {
	if metrics.Registry == nil {
		t.Error("Registry should not be nil")
	}

	if metrics.Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestNamesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, name := range metrics.Names {
		if !strings.HasPrefix(name, "storefront_") {
			t.Errorf("metric %q lacks storefront_ prefix", name)
		}
		if seen[name] {
			t.Errorf("metric %q listed twice", name)
		}
		seen[name] = true
	}
}

func TestCatalogueMatchesRegistered(t *testing.T) {
	// Vec metrics only appear once a label set is observed, so check the
	// plain ones through the gatherer.
	cache.CacheHits.Add(0)

	families, err := metrics.Gatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	registered := make(map[string]bool)
	for _, f := range families {
		registered[f.GetName()] = true
	}

	for _, name := range []string{
		"storefront_cache_hits_total",
		"storefront_cache_entries",
		"storefront_api_session_rejections_total",
		"storefront_proxy_upstream_duration_seconds",
	} {
		if !registered[name] {
			t.Errorf("metric %q not registered", name)
		}
	}

	for name := range registered {
		if !strings.HasPrefix(name, "storefront_") {
			continue
		}
		found := false
		for _, n := range metrics.Names {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("registered metric %q missing from catalogue", name)
		}
	}
}

func TestHandler(t *testing.T) {
	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "storefront_cache_entries") {
		t.Error("expected storefront_cache_entries in exposition")
	}
}
