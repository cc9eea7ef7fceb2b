package instance

import (
	"strings"
	"testing"
)

func TestIDPrefersConfiguredValue(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "api-7")
	t.Setenv("DYNO", "web.1")

	if got := ID("api"); got != "api-7" {
		t.Fatalf("expected api-7, got %q", got)
	}
}

func TestIDFallsBackToKind(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	t.Setenv("DYNO", "")

	if got := ID("worker"); !strings.HasPrefix(got, "worker-") {
		t.Fatalf("expected worker- prefix, got %q", got)
	}
}
