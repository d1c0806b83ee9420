package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestBar(t *testing.T) {
	var buf bytes.Buffer
	bar := Start(10, &buf)
	for i := 0; i < 3; i++ {
		bar.Increment()
	}
	bar.Finish()

	if bar.Current() != 3 {
		t.Fatalf("got %d want 3", bar.Current())
	}
	if buf.Len() == 0 {
		t.Fatalf("nothing rendered")
	}
}

func TestNilBar(t *testing.T) {
	var bar *Bar
	bar.Increment()
	bar.Finish()
	if bar.Current() != 0 {
		t.Fatalf("nil bar counted")
	}
}

func TestIsTerminal_File(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()

	if IsTerminal(f) {
		t.Fatalf("regular file reported as terminal")
	}
}
