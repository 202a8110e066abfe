package log

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelDependsOnEnv(t *testing.T) {
	if got := NewLogger("dev").GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("в dev ожидали debug, получили %s", got)
	}
	if got := NewLogger("prod").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("в prod ожидали info, получили %s", got)
	}
}
