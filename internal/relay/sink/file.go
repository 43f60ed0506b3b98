package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/lumberjack"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/recorder"
)

// FileOptions configures the JSONL file sink.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// File appends records as JSON lines to a size-rotated file.
type File struct {
	mu   sync.Mutex
	out  *lumberjack.Logger
	last model.LogicalTime
}

var (
	_ recorder.Sink    = (*File)(nil)
	_ recorder.Resumer = (*File)(nil)
)

func NewFile(opts FileOptions) (*File, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("file sink: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("file sink: %w", err)
	}

	f := &File{
		out: &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  false,
		},
	}
	last, err := lastInFile(opts.Path)
	if err != nil {
		return nil, err
	}
	f.last = last
	return f, nil
}

// Append writes one line per record. Records already written by an
// earlier, partially failed attempt are skipped.
func (f *File) Append(_ context.Context, records []model.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range unwritten(records, f.last) {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", rec.LogicalTime, err)
		}
		if _, err := f.out.Write(append(line, '\n')); err != nil {
			return err
		}
		f.last = rec.LogicalTime
	}
	return nil
}

func (f *File) LastLogicalTime(context.Context) (model.LogicalTime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, nil
}

func (f *File) Close() error {
	return f.out.Close()
}

// lastInFile scans the active file for the highest logical time. Rotated
// backups only hold older records.
func lastInFile(path string) (model.LogicalTime, error) {
	fh, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("file sink: %w", err)
	}
	defer fh.Close()

	var last model.LogicalTime
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var head struct {
			LogicalTime model.LogicalTime `json:"logical_time"`
		}
		// A torn last line is ignored.
		if json.Unmarshal(sc.Bytes(), &head) == nil && head.LogicalTime > last {
			last = head.LogicalTime
		}
	}
	return last, sc.Err()
}
