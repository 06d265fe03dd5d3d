package internal

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
)

// ArchiveLimits bounds what is read out of a single archive.
type ArchiveLimits struct {
	// MaxDecompressionRatio caps uncompressed/compressed size per ZIP entry.
	// TAR entries are stored uncompressed and are not ratio-checked.
	MaxDecompressionRatio int64
	// MaxTotalSize caps the bytes extracted across all entries.
	MaxTotalSize int64
	// MaxEntryCount caps the number of entries scanned.
	MaxEntryCount int
	// MaxEntrySize skips any entry larger than this.
	MaxEntrySize int64
}

// DefaultArchiveLimits returns conservative defaults for archive extraction.
func DefaultArchiveLimits() ArchiveLimits {
	return ArchiveLimits{
		MaxDecompressionRatio: 100,
		MaxTotalSize:          256 * 1024 * 1024,
		MaxEntryCount:         10_000,
		MaxEntrySize:          32 * 1024 * 1024,
	}
}

// ProcessArchiveInput holds the parameters for archive processing.
type ProcessArchiveInput struct {
	ArchivePath string
	Data        []byte
	Format      string
	Limits      ArchiveLimits
	// Scan carries the options, filter and handler applied to each entry.
	Scan ProcessInput
}

var archiveExtensions = map[string]string{
	".zip": "zip",
	".tar": "tar",
	".tgz": "tar.gz",
}

// ArchiveFormat returns "zip", "tar" or "tar.gz" for a recognized archive
// path, or "".
func ArchiveFormat(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") {
		return "tar.gz"
	}
	return archiveExtensions[filepath.Ext(lower)]
}

// IsArchive reports whether path has a recognized archive extension.
func IsArchive(path string) bool {
	return ArchiveFormat(path) != ""
}

// archiveEntry is one regular file inside an archive. read returns at most
// limit+1 bytes so an oversized entry can be detected.
type archiveEntry struct {
	name       string
	size       int64
	compressed int64
	read       func(limit int64) ([]byte, error)
}

// ProcessArchive scans every PEM-bearing entry of an archive as its own
// source, named "<archive>:<entry>". With Scan.Containers set, entries
// without PEM markers are decoded as binary containers, as ProcessFile does
// for files on disk. Nested archives are skipped. It returns the number of
// entries scanned.
func ProcessArchive(input ProcessArchiveInput) (int, error) {
	var walk func(func(archiveEntry) bool) error
	switch input.Format {
	case "zip":
		walk = func(yield func(archiveEntry) bool) error { return walkZip(input.Data, yield) }
	case "tar", "tar.gz":
		gzipped := input.Format == "tar.gz"
		walk = func(yield func(archiveEntry) bool) error { return walkTar(input.Data, gzipped, yield) }
	default:
		return 0, fmt.Errorf("unsupported archive format: %q", input.Format)
	}

	limits := input.Limits
	var total int64
	processed := 0
	var fatal error

	err := walk(func(e archiveEntry) bool {
		if processed >= limits.MaxEntryCount {
			slog.Warn("archive entry count limit reached, stopping", "archive", input.ArchivePath, "limit", limits.MaxEntryCount)
			return false
		}
		if IsArchive(e.name) {
			slog.Debug("skipping nested archive", "archive", input.ArchivePath, "entry", e.name)
			return true
		}
		if e.compressed > 0 && e.size/e.compressed > limits.MaxDecompressionRatio {
			slog.Warn("skipping archive entry with suspicious compression ratio",
				"archive", input.ArchivePath, "entry", e.name, "ratio", e.size/e.compressed)
			return true
		}
		if e.size > limits.MaxEntrySize {
			slog.Debug("skipping oversized archive entry", "archive", input.ArchivePath, "entry", e.name, "size", e.size)
			return true
		}
		if total+e.size > limits.MaxTotalSize {
			slog.Warn("archive total size limit reached, stopping", "archive", input.ArchivePath, "limit", limits.MaxTotalSize)
			return false
		}

		data, err := e.read(limits.MaxEntrySize)
		if err != nil {
			slog.Debug("reading archive entry", "archive", input.ArchivePath, "entry", e.name, "error", err)
			return true
		}
		if int64(len(data)) > limits.MaxEntrySize {
			slog.Warn("archive entry exceeded its declared size", "archive", input.ArchivePath, "entry", e.name)
			return true
		}
		total += int64(len(data))

		scan := input.Scan
		scan.Data = data
		scan.Reader = nil
		scan.Path = input.ArchivePath + ":" + e.name
		if !bytes.Contains(data, beginMarker) {
			if !scan.Containers {
				return true
			}
			if err := processContainer(data, scan); err != nil {
				fatal = err
				return false
			}
			processed++
			return true
		}
		if err := ProcessData(scan); err != nil {
			fatal = err
			return false
		}
		processed++
		return true
	})
	if fatal != nil {
		return processed, fatal
	}
	if err != nil {
		if processed == 0 {
			return 0, err
		}
		slog.Warn("archive read error after scanning entries", "archive", input.ArchivePath, "processed", processed, "error", err)
	}

	slog.Debug("processed archive", "archive", input.ArchivePath, "format", input.Format, "entries", processed)
	return processed, nil
}

func walkZip(data []byte, yield func(archiveEntry) bool) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("opening ZIP archive: %w", err)
	}
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entry := archiveEntry{
			name:       f.Name,
			size:       int64(f.UncompressedSize64),
			compressed: int64(f.CompressedSize64),
			read: func(limit int64) ([]byte, error) {
				rc, err := f.Open()
				if err != nil {
					return nil, fmt.Errorf("opening ZIP entry %s: %w", f.Name, err)
				}
				defer rc.Close()
				return io.ReadAll(io.LimitReader(rc, safeLimitSize(limit)))
			},
		}
		if !yield(entry) {
			return nil
		}
	}
	return nil
}

func walkTar(data []byte, gzipped bool, yield func(archiveEntry) bool) error {
	var r io.Reader = bytes.NewReader(data)
	if gzipped {
		gr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("opening gzip layer: %w", err)
		}
		defer gr.Close()
		r = gr
	}

	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading TAR archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		entry := archiveEntry{
			name: header.Name,
			size: header.Size,
			read: func(limit int64) ([]byte, error) {
				return io.ReadAll(io.LimitReader(tr, safeLimitSize(limit)))
			},
		}
		if !yield(entry) {
			return nil
		}
	}
}

// safeLimitSize returns maxSize+1 for overflow detection in io.LimitReader,
// clamped to math.MaxInt64.
func safeLimitSize(maxSize int64) int64 {
	if maxSize == math.MaxInt64 {
		return math.MaxInt64
	}
	return maxSize + 1
}
