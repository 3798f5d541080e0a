package seed

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadNouns reads the first column of a noun CSV, lowercased. Records that
// fail to parse are skipped.
func LoadNouns(r io.Reader, header bool) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var nouns []string
	first := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, fmt.Errorf("read nouns: %w", err)
		}
		if first && header {
			first = false
			continue
		}
		first = false
		if len(record) == 0 {
			continue
		}
		noun := strings.ToLower(strings.TrimSpace(record[0]))
		if noun != "" {
			nouns = append(nouns, noun)
		}
	}
	return nouns, nil
}

// LoadNounsFile opens path and calls LoadNouns
func LoadNounsFile(path string, header bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open nouns: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadNouns(f, header)
}

// FileName returns the seed file name for a locale and seed length
func FileName(locale string, length int) string {
	return fmt.Sprintf("%s_%dletters.csv", locale, length)
}

// Write persists the 2-, 3- and 4-letter layers under dir/<locale>/
func Write(dir, locale string, res Result) ([]string, error) {
	outDir := filepath.Join(dir, locale)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create seed dir: %w", err)
	}

	layers := []struct {
		length int
		seeds  []string
	}{
		{2, res.Seeds2},
		{3, res.Seeds3},
		{4, res.Seeds4},
	}

	var paths []string
	for _, layer := range layers {
		path := filepath.Join(outDir, FileName(locale, layer.length))
		if err := writeLines(path, layer.seeds); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Read loads one seed file, one seed per line, deduplicated in order
func Read(dir, locale string, length int) ([]string, error) {
	path := filepath.Join(dir, locale, FileName(locale, length))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seeds: %w", err)
	}
	defer func() { _ = f.Close() }()

	var seeds []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan seeds: %w", err)
	}
	return seeds, nil
}

func writeLines(path string, lines []string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return w.Flush()
}
