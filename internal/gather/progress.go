package gather

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	emptyFile     = ".warm-empty"
	completedFile = ".warm-completed"
)

// Progress persists cache-warm state between runs: which symbols had no
// data for a range, and the last range that was warmed completely. It is
// safe for concurrent use.
type Progress struct {
	mu     sync.Mutex
	empty  map[string]struct{}
	writer *bufio.Writer
	file   *os.File
	dir    string
}

// OpenProgress loads the progress files in dir, creating dir if needed.
func OpenProgress(dir string) (*Progress, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	p := &Progress{
		empty: make(map[string]struct{}),
		dir:   dir,
	}

	data, err := os.ReadFile(filepath.Join(dir, emptyFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", emptyFile, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if key := strings.TrimSpace(line); key != "" {
			p.empty[key] = struct{}{}
		}
	}

	if err := p.openAppend(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Progress) openAppend() error {
	f, err := os.OpenFile(filepath.Join(p.dir, emptyFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", emptyFile, err)
	}
	p.file = f
	p.writer = bufio.NewWriter(f)
	return nil
}

func emptyKey(symbol string, rng DateRange) string {
	return strings.ToUpper(symbol) + " " + rng.String()
}

// IsEmpty reports whether symbol was already found to have no bars in rng.
func (p *Progress) IsEmpty(symbol string, rng DateRange) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.empty[emptyKey(symbol, rng)]
	return ok
}

// MarkEmpty records that symbol has no bars in rng.
func (p *Progress) MarkEmpty(symbol string, rng DateRange) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := emptyKey(symbol, rng)
	if _, ok := p.empty[key]; ok {
		return nil
	}
	p.empty[key] = struct{}{}
	if _, err := p.writer.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("writing %s: %w", emptyFile, err)
	}
	return p.writer.Flush()
}

// MarkCompleted records rng as fully warmed.
func (p *Progress) MarkCompleted(rng DateRange) error {
	return os.WriteFile(filepath.Join(p.dir, completedFile), []byte(rng.String()), 0o644)
}

// IsCompleted reports whether the last completed run covered exactly rng.
func (p *Progress) IsCompleted(rng DateRange) bool {
	data, err := os.ReadFile(filepath.Join(p.dir, completedFile))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == rng.String()
}

// Reset forgets all recorded state.
func (p *Progress) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file != nil {
		p.file.Close()
	}
	p.empty = make(map[string]struct{})
	for _, name := range []string{emptyFile, completedFile} {
		if err := os.Remove(filepath.Join(p.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	return p.openAppend()
}

// Close flushes and closes the progress files.
func (p *Progress) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
