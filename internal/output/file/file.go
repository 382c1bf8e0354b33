// Package file writes result records to a local NDJSON file.
package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/model"
	"github.com/crimson-sun/persona/internal/output"
)

const (
	defaultBufSize = 64 << 10
	defaultKeep    = 5
)

var errClosed = errors.New("file output: closed")

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize rolls the file over once the next record would push it past
// n bytes. 0 keeps a single growing file.
func WithMaxSize(n int64) Option {
	return func(o *Output) { o.maxSize = n }
}

// WithKeep sets how many rolled-over files ({path}.1 being the newest) are
// kept. Default: 5.
func WithKeep(n int) Option {
	return func(o *Output) {
		if n > 0 {
			o.keep = n
		}
	}
}

// WithBufSize sets the write buffer size. Default: 64KiB.
func WithBufSize(n int) Option {
	return func(o *Output) { o.bufSize = n }
}

// Output appends one result record per user as a JSON line. Records are
// buffered and reach the disk on rollover and Close.
type Output struct {
	path      string
	verbosity output.Verbosity
	maxSize   int64
	keep      int
	bufSize   int

	mu   sync.Mutex
	f    *os.File
	buf  *bufio.Writer
	size int64
}

// New opens path for appending, creating it when missing.
func New(path string, verbosity output.Verbosity, opts ...Option) (*Output, error) {
	o := &Output{
		path:      path,
		verbosity: verbosity,
		keep:      defaultKeep,
		bufSize:   defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.open(); err != nil {
		return nil, err
	}
	return o, nil
}

// Write appends the record for result. Nothing is written once ctx is done.
func (o *Output) Write(ctx context.Context, result model.UserPredictions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(output.FormatResult(result, o.verbosity))
	if err != nil {
		return fmt.Errorf("file output: encode %s: %w", result.UserID, err)
	}
	line = append(line, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return errClosed
	}
	if o.full(len(line)) {
		if err := o.rollOver(); err != nil {
			return fmt.Errorf("file output: roll over %s: %w", o.path, err)
		}
	}
	n, err := o.buf.Write(line)
	o.size += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write %s: %w", o.path, err)
	}
	return nil
}

// Close flushes buffered records and closes the file. Later calls are no-ops.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return nil
	}
	if err := o.closeFile(); err != nil {
		return fmt.Errorf("file output: close %s: %w", o.path, err)
	}
	return nil
}

// full reports whether a record of n bytes overflows a non-empty file.
// A single record larger than maxSize still gets a file of its own.
func (o *Output) full(n int) bool {
	return o.maxSize > 0 && o.size > 0 && o.size+int64(n) > o.maxSize
}

func (o *Output) open() error {
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", o.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat %s: %w", o.path, err)
	}
	o.f = f
	o.buf = bufio.NewWriterSize(f, o.bufSize)
	o.size = info.Size()
	return nil
}

func (o *Output) closeFile() error {
	f := o.f
	o.f = nil
	if err := o.buf.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// rollOver moves the current file to {path}.1, shifting older generations
// up by one and dropping the one past keep, then starts a fresh file.
func (o *Output) rollOver() error {
	if err := o.closeFile(); err != nil {
		return err
	}
	if err := os.Remove(o.generation(o.keep)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for i := o.keep - 1; i >= 1; i-- {
		if err := os.Rename(o.generation(i), o.generation(i+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.Rename(o.path, o.generation(1)); err != nil {
		return err
	}
	return o.open()
}

func (o *Output) generation(i int) string {
	return o.path + "." + strconv.Itoa(i)
}
