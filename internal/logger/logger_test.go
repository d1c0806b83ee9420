package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetup_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcscan.log")

	closer := Setup(Config{Level: "debug", Format: "json", Output: path})
	log.Debug().Str("ip", "192.0.2.1").Msg("probe done")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"ip":"192.0.2.1"`) || !strings.Contains(string(data), `"message":"probe done"`) {
		t.Fatalf("got %s", data)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("level got %s", zerolog.GlobalLevel())
	}
}

func TestSetup_InvalidLevelFallsBack(t *testing.T) {
	_ = Setup(Config{Level: "loud", Format: "console", Output: "stderr"}).Close()

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("level got %s", zerolog.GlobalLevel())
	}
}
