package canbus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Trace writes a timestamped transcript of every frame crossing the
// socket. Transcripts are the main tool for diagnosing a flash that
// left a module in a bad state.
type Trace struct {
	w    io.WriteCloser
	path string
}

// NewTrace opens a transcript file. An empty path places the file under
// the user state directory.
func NewTrace(path string) (*Trace, error) {
	if path == "" {
		path = filepath.Join(xdg.StateHome, "pcanflash",
			fmt.Sprintf("trace-%s.log", time.Now().Format("20060102-150405")))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create trace directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create trace file: %w", err)
	}
	return &Trace{w: f, path: path}, nil
}

// Path returns the transcript location.
func (t *Trace) Path() string {
	return t.path
}

func (t *Trace) record(dir string, f Frame) {
	if t == nil {
		return
	}
	fmt.Fprintf(t.w, "%s %s %s\n", time.Now().Format("15:04:05.000000"), dir, f)
}

func (t *Trace) Close() error {
	if t == nil {
		return nil
	}
	return t.w.Close()
}
