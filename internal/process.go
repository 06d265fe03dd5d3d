package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sensiblebit/pemfile"
)

// skippableDirs contains directory names that cannot contain PEM files of
// interest and are skipped during filesystem walks.
var skippableDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".tox":         true,
	".venv":        true,
}

// IsSkippableDir reports whether the given directory name should be skipped
// during scanning.
func IsSkippableDir(name string) bool {
	return skippableDirs[name]
}

var beginMarker = []byte("-----BEGIN ")

// ProcessData scans one source and dispatches its sections to the handler.
// Section errors go to HandleError; under the strict policy the first one
// ends the source, under lenient scanning resumes at the next BEGIN. Read
// failures are returned instead.
func ProcessData(input ProcessInput) error {
	var s *pemfile.Scanner
	if input.Data != nil {
		s = pemfile.NewBytesScanner(input.Data, input.Options)
	} else {
		s = pemfile.NewScannerOptions(input.Reader, input.Options)
	}

	for {
		item, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var secErr *pemfile.SectionError
			if !errors.As(err, &secErr) {
				return fmt.Errorf("scanning %s: %w", input.Path, err)
			}
			slog.Warn("skipping section", "path", input.Path, "line", secErr.Line, "error", err)
			input.Handler.HandleError(err, input.Path)
			if input.Options.Policy == pemfile.Strict {
				return nil
			}
			continue
		}
		if !input.Filter.Allows(item) {
			slog.Debug("filtered section", "path", input.Path, "label", item.Label, "line", s.Line())
			continue
		}
		slog.Debug("found section", "path", input.Path, "kind", item.Kind, "label", item.Label, "bytes", len(item.Bytes))
		if err := input.Handler.HandleItem(item, input.Path); err != nil {
			slog.Debug("handler rejected section", "path", input.Path, "label", item.Label, "error", err)
		}
	}
}

// ProcessFile reads path and passes its content to ProcessData. Archives
// are scanned entry by entry. Files without any BEGIN marker are skipped,
// or decoded as binary containers when input.Containers is set.
func ProcessFile(path string, input ProcessInput) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", path, err)
	}
	input.Path = path
	if format := ArchiveFormat(path); format != "" {
		_, err := ProcessArchive(ProcessArchiveInput{
			ArchivePath: path,
			Data:        data,
			Format:      format,
			Limits:      DefaultArchiveLimits(),
			Scan:        input,
		})
		return err
	}
	if !bytes.Contains(data, beginMarker) {
		if input.Containers {
			return processContainer(data, input)
		}
		slog.Debug("skipping file without PEM markers", "path", path)
		return nil
	}
	input.Data = data
	return ProcessData(input)
}

// ProcessPath scans a file, every file below a directory, or stdin when
// Path is "-". Unreadable files inside a directory are logged and skipped.
// Cancellation is checked between files.
func ProcessPath(ctx context.Context, in WalkInput) error {
	base := ProcessInput{
		Options:    in.Options,
		Filter:     in.Filter,
		Handler:    in.Handler,
		Containers: in.Containers,
		Passwords:  in.Passwords,
	}

	if in.Path == "-" {
		base.Reader = in.Stdin
		if base.Reader == nil {
			base.Reader = os.Stdin
		}
		base.Path = "<stdin>"
		return ProcessData(base)
	}

	info, err := os.Stat(in.Path)
	if err != nil {
		return fmt.Errorf("input path %s: %w", in.Path, err)
	}
	if !info.IsDir() {
		return ProcessFile(in.Path, base)
	}

	err = filepath.WalkDir(in.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("walking input path", "path", path, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != in.Path && IsSkippableDir(d.Name()) {
				slog.Debug("skipping directory", "path", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ProcessFile(path, base); err != nil {
			slog.Warn("error processing file", "path", path, "error", err)
			in.Handler.HandleError(err, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking input path: %w", err)
	}
	return nil
}

// ItemCollector is an ItemHandler that keeps every accepted item and every
// error, in arrival order.
type ItemCollector struct {
	Items   []pemfile.Item
	Sources []string
	Errors  []SourceError
}

// HandleItem stores a detached copy of item.
func (c *ItemCollector) HandleItem(item pemfile.Item, source string) error {
	c.Items = append(c.Items, item.Clone())
	c.Sources = append(c.Sources, source)
	return nil
}

// HandleError records err.
func (c *ItemCollector) HandleError(err error, source string) {
	c.Errors = append(c.Errors, SourceError{Source: source, Err: err})
}

// CollectFile scans in.Path into an ItemCollector. in.Handler is ignored.
func CollectFile(ctx context.Context, in WalkInput) (*ItemCollector, error) {
	c := &ItemCollector{}
	in.Handler = c
	if err := ProcessPath(ctx, in); err != nil {
		return nil, err
	}
	return c, nil
}
