package diff

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateFile is returned when two files of one version share a base name.
var ErrDuplicateFile = errors.New("duplicate file base name")

// FileOptions configures MapFiles.
type FileOptions struct {
	// Ignore holds glob patterns matched against slash-separated paths.
	Ignore []string

	// Workers bounds concurrent reads and diffs. Values <= 0 mean 1.
	Workers int

	// Diff options for every file pair.
	Diff []Option
}

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

type filePair struct {
	name          string
	before, after string
}

// MapFiles pairs the files of two versions by base name and diffs every pair.
// A file present in only one version is diffed against an empty sequence.
// Mappings are returned in after-version order followed by removed files.
func MapFiles(ctx context.Context, before, after []string, opts FileOptions) ([]*Mapping, error) {
	var ignore []compiledPattern
	for _, pattern := range opts.Ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		ignore = append(ignore, compiledPattern{pattern: pattern, glob: g})
	}

	pairs, err := pairFiles(before, after, ignore)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	mappings := make([]*Mapping, len(pairs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			m, err := mapPair(p, opts.Diff)
			if err != nil {
				return err
			}
			mappings[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mappings, nil
}

func mapPair(p filePair, opts []Option) (*Mapping, error) {
	var a, b []string
	var err error
	if p.before != "" {
		if a, err = ReadLines(p.before); err != nil {
			return nil, err
		}
	}
	if p.after != "" {
		if b, err = ReadLines(p.after); err != nil {
			return nil, err
		}
	}

	script, err := Compose(a, b, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	m := NewMapping(p.name, script)
	m.Before = p.before
	m.After = p.after
	return m, nil
}

func pairFiles(before, after []string, ignore []compiledPattern) ([]filePair, error) {
	index := func(files []string) ([]string, map[string]string, error) {
		var order []string
		byName := make(map[string]string)
		for _, f := range files {
			if ignored(f, ignore) {
				continue
			}
			name := filepath.Base(f)
			if prev, ok := byName[name]; ok {
				return nil, nil, fmt.Errorf("%w: %s and %s", ErrDuplicateFile, prev, f)
			}
			byName[name] = f
			order = append(order, name)
		}
		return order, byName, nil
	}

	beforeOrder, beforeByName, err := index(before)
	if err != nil {
		return nil, err
	}
	afterOrder, afterByName, err := index(after)
	if err != nil {
		return nil, err
	}

	pairs := make([]filePair, 0, len(afterOrder)+len(beforeOrder))
	for _, name := range afterOrder {
		pairs = append(pairs, filePair{name: name, before: beforeByName[name], after: afterByName[name]})
	}
	for _, name := range beforeOrder {
		if _, ok := afterByName[name]; !ok {
			pairs = append(pairs, filePair{name: name, before: beforeByName[name]})
		}
	}
	return pairs, nil
}

func ignored(path string, ignore []compiledPattern) bool {
	slashed := filepath.ToSlash(path)
	for _, cp := range ignore {
		if cp.glob.Match(slashed) || cp.glob.Match(filepath.Base(slashed)) {
			return true
		}
	}
	return false
}

// ReadLines reads a text file into lines without their terminators.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
