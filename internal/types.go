package internal

import (
	"io"

	"github.com/sensiblebit/pemfile"
)

// ItemHandler receives sections from the processing pipeline. The item's
// Bytes alias the scanner's buffer and are only valid during the call;
// handlers that keep an item must Clone it.
type ItemHandler interface {
	HandleItem(item pemfile.Item, source string) error
	HandleError(err error, source string)
}

// ProcessInput holds parameters for ProcessData.
type ProcessInput struct {
	Data    []byte          // file content; when nil, Reader is streamed instead
	Reader  io.Reader       // streaming source such as stdin
	Path    string          // source name for logging and handler callbacks
	Options pemfile.Options // scan policy and size bound
	Filter  LabelFilter     // sections to pass to the handler
	Handler ItemHandler     // receives accepted items and section errors

	// Containers decodes files without PEM markers as PKCS#12, JKS,
	// PKCS#7 or DER, trying Passwords on encrypted ones.
	Containers bool
	Passwords  []string
}

// WalkInput holds parameters for ProcessPath.
type WalkInput struct {
	Path    string    // file, directory, or "-" for Stdin
	Stdin   io.Reader // defaults to os.Stdin
	Options pemfile.Options
	Filter  LabelFilter
	Handler ItemHandler

	Containers bool
	Passwords  []string
}

// SourceError is a section or file error together with where it came from.
type SourceError struct {
	Source string `json:"source" yaml:"source"`
	Err    error  `json:"-" yaml:"-"`
}

func (e SourceError) Error() string { return e.Source + ": " + e.Err.Error() }

func (e SourceError) Unwrap() error { return e.Err }
