package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("COGAT_TEST_DUR", "15")
	if got := Duration("COGAT_TEST_DUR", time.Second); got != 15*time.Second {
		t.Fatalf("bare seconds: got %v", got)
	}
	t.Setenv("COGAT_TEST_DUR", "250ms")
	if got := Duration("COGAT_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("go duration: got %v", got)
	}
	t.Setenv("COGAT_TEST_DUR", "soon")
	if got := Duration("COGAT_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("invalid: got %v", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("COGAT_TEST_BOOL", "on")
	if !Bool("COGAT_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("COGAT_TEST_BOOL", "maybe")
	if Bool("COGAT_TEST_BOOL", false) {
		t.Fatalf("expected default")
	}
}

func TestKeyValues(t *testing.T) {
	t.Setenv("COGAT_TEST_KV", "a=1, b = 2,broken,=x")
	got := KeyValues("COGAT_TEST_KV")
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Fatalf("got %v", got)
	}
}
