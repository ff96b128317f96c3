package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// ReadURLs parses a URL list: one URL per line. Blank lines, # comments and
// lines that are not http(s) URLs are skipped. Duplicates are dropped
// keeping the first occurrence.
func ReadURLs(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		add(&out, seen, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return out, nil
}

// LoadURLs reads the URL list at path. A missing file wraps
// tour.ErrInputNotFound.
func LoadURLs(path string) ([]string, error) {
	// #nosec G304 -- the operator names the input file.
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", tour.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadURLs(f)
}

// CleanURLs applies the URL list filtering rules to an in-memory list.
func CleanURLs(lines []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, l := range lines {
		add(&out, seen, l)
	}
	return out
}

func add(out *[]string, seen map[string]struct{}, line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	lower := strings.ToLower(line)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return
	}
	if _, dup := seen[line]; dup {
		return
	}
	seen[line] = struct{}{}
	*out = append(*out, line)
}
