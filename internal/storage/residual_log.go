package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ResidualFileName names the residual series of one solver configuration,
// e.g. "jacobi_dual_residual.txt" or "jacobi_chebyshev_dual_residual.txt".
func ResidualFileName(strategy string, chebyshev bool) string {
	name := strategy
	if chebyshev {
		name += "_chebyshev"
	}
	return name + "_dual_residual.txt"
}

// ResidualLog writes one residual per line. The file is truncated when
// opened and only appended to afterwards.
type ResidualLog struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
	err  error
}

// CreateResidualLog opens dir/ResidualFileName(strategy, chebyshev),
// creating dir when needed.
func CreateResidualLog(dir, strategy string, chebyshev bool) (*ResidualLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, ResidualFileName(strategy, chebyshev))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &ResidualLog{f: f, w: bufio.NewWriter(f), path: path}, nil
}

func (l *ResidualLog) Path() string { return l.path }

// Append writes each value on its own line.
func (l *ResidualLog) Append(values ...float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return l.err
	}
	for _, v := range values {
		if _, err := l.w.WriteString(strconv.FormatFloat(v, 'g', -1, 64) + "\n"); err != nil {
			l.err = err
			return err
		}
	}
	return nil
}

// OnStep appends a step's residual series. Write errors are kept and
// reported by Err and Close.
func (l *ResidualLog) OnStep(_ int, residuals []float64) {
	_ = l.Append(residuals...)
}

func (l *ResidualLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *ResidualLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	flushErr := l.w.Flush()
	closeErr := l.f.Close()
	switch {
	case l.err != nil:
		return l.err
	case flushErr != nil:
		return flushErr
	default:
		return closeErr
	}
}

// ReadResiduals parses a residual file written by ResidualLog. Blank lines
// are ignored.
func ReadResiduals(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		values = append(values, v)
	}
	return values, sc.Err()
}
