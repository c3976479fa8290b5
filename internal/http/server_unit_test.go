package http

import (
	"context"
	"testing"
)

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"Bearer abc":         "abc",
		"bearer abc":         "abc",
		"Bearer  abc ":       "abc",
		"Basic abc":          "",
		"Bearer":             "",
		"abc":                "",
		"Bearer abc def ghi": "abc def ghi",
	}
	for header, expect := range cases {
		if got := bearerToken(header); got != expect {
			t.Fatalf("bearerToken(%q) = %q, expected %q", header, got, expect)
		}
	}
}

func TestClaimsFromContextMissing(t *testing.T) {
	if claims := claimsFromContext(context.Background()); claims != nil {
		t.Fatalf("expected nil claims on empty context")
	}
}
