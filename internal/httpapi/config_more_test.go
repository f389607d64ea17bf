package httpapi

import (
	"testing"
	"time"
)

func TestSetMaxBodyBytes_DefaultWhenNonPositive(t *testing.T) {
	SetMaxBodyBytes(-1)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(0)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB on zero, got %d", maxBodyBytes)
	}
}

func TestSetMaxBodyBytes_PositiveSetsValue(t *testing.T) {
	defer SetMaxBodyBytes(0)
	SetMaxBodyBytes(1234)
	if maxBodyBytes != 1234 {
		t.Fatalf("expected 1234, got %d", maxBodyBytes)
	}
}

func TestSetTurnTimeout_NormalizesNegativeToZero(t *testing.T) {
	defer SetTurnTimeout(0)
	SetTurnTimeout(-5 * time.Second)
	if turnTimeout != 0 {
		t.Fatalf("expected 0, got %v", turnTimeout)
	}
	SetTurnTimeout(3 * time.Second)
	if turnTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %v", turnTimeout)
	}
}

func TestCORSDefaults(t *testing.T) {
	defer SetCORSOptions(false, nil, nil, nil)
	SetCORSOptions(true, []string{"*"}, nil, nil)
	if len(corsMethods()) == 0 || len(corsHeaders()) == 0 {
		t.Fatal("empty CORS method/header lists must fall back to defaults")
	}
	SetCORSOptions(true, []string{"*"}, []string{"GET"}, []string{"X"})
	if got := corsMethods(); len(got) != 1 || got[0] != "GET" {
		t.Fatalf("methods=%v", got)
	}
}
