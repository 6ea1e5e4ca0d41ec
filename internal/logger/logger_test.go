package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_Environments(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker", "test"} {
		l, err := NewLogger(env, "")
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", env, err)
		}
		if l == nil {
			t.Fatalf("NewLogger(%q) returned nil logger", env)
		}
	}
}

func TestNewLogger_UnknownEnv(t *testing.T) {
	if _, err := NewLogger("staging", ""); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zap.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}

	if _, err := NewLogger("prod", "loud"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected nop logger, got nil")
	}

	reqLogger := zap.NewExample()
	ctx := ContextWithLogger(context.Background(), reqLogger)
	if FromContext(ctx) != reqLogger {
		t.Error("expected stored logger")
	}

	fallback := zap.NewNop()
	if FromContextOr(context.Background(), fallback) != fallback {
		t.Error("expected fallback logger")
	}
	if FromContextOr(ctx, fallback) != reqLogger {
		t.Error("expected stored logger over fallback")
	}
}
