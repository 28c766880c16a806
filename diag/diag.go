// Package diag writes and reads the plain text numeric files used for
// offline inspection of captured and generated signals.
package diag

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

func format[T Number](v T) string {
	switch x := any(v).(type) {
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// WriteColumn writes one value per line.
func WriteColumn[T Number](path string, values []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range values {
		if _, err := fmt.Fprintln(w, format(v)); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return w.Flush()
}

// WritePairs writes "x value" lines. xs and ys must be the same length.
func WritePairs[X, Y Number](path string, xs []X, ys []Y) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("%s: %d x values for %d values", path, len(xs), len(ys))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := range xs {
		if _, err := fmt.Fprintf(w, "%s %s\n", format(xs[i]), format(ys[i])); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return w.Flush()
}

// ReadColumn reads the last field of every non-empty line, so it accepts
// both single column and pair files.
func ReadColumn(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}
