package options

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*AuditOptions)(nil)

const (
	AuditSinkNone   = "none"
	AuditSinkFile   = "file"
	AuditSinkS3     = "s3"
	AuditSinkPebble = "pebble"
)

// AuditOptions selects and tunes the durable log sink.
type AuditOptions struct {
	Sink string `json:"sink" mapstructure:"sink"`

	Capacity      int           `json:"capacity" mapstructure:"capacity"`
	BatchSize     int           `json:"batch-size" mapstructure:"batch-size"`
	FlushInterval time.Duration `json:"flush-interval" mapstructure:"flush-interval"`
	MinBackoff    time.Duration `json:"min-backoff" mapstructure:"min-backoff"`
	MaxBackoff    time.Duration `json:"max-backoff" mapstructure:"max-backoff"`

	// File sink.
	FilePath       string `json:"file-path" mapstructure:"file-path"`
	FileMaxSizeMB  int    `json:"file-max-size" mapstructure:"file-max-size"`
	FileMaxBackups int    `json:"file-max-backups" mapstructure:"file-max-backups"`
	FileMaxAgeDays int    `json:"file-max-age" mapstructure:"file-max-age"`
	FileCompress   bool   `json:"file-compress" mapstructure:"file-compress"`

	// Pebble sink.
	PebbleDir string `json:"pebble-dir" mapstructure:"pebble-dir"`
}

func NewAuditOptions() *AuditOptions {
	return &AuditOptions{
		Sink:           AuditSinkFile,
		Capacity:       4096,
		BatchSize:      128,
		FlushInterval:  time.Second,
		MinBackoff:     100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		FilePath:       "logs/audit.jsonl",
		FileMaxSizeMB:  100,
		FileMaxBackups: 14,
		FileMaxAgeDays: 30,
		PebbleDir:      "data/audit",
	}
}

func (o *AuditOptions) Validate() []error {
	var errors []error

	sinks := []string{AuditSinkNone, AuditSinkFile, AuditSinkS3, AuditSinkPebble}
	if !slices.Contains(sinks, o.Sink) {
		errors = append(errors, fmt.Errorf("--audit.sink must be one of %v, got %q", sinks, o.Sink))
	}
	if o.Capacity <= 0 {
		errors = append(errors, fmt.Errorf("--audit.capacity must be positive"))
	}
	if o.BatchSize <= 0 || o.BatchSize > o.Capacity {
		errors = append(errors, fmt.Errorf("--audit.batch-size must be in (0, capacity]"))
	}
	if o.FlushInterval <= 0 {
		errors = append(errors, fmt.Errorf("--audit.flush-interval must be positive"))
	}
	if o.MinBackoff <= 0 || o.MaxBackoff < o.MinBackoff {
		errors = append(errors, fmt.Errorf("--audit.min-backoff must be positive and not above --audit.max-backoff"))
	}
	if o.Sink == AuditSinkFile && o.FilePath == "" {
		errors = append(errors, fmt.Errorf("--audit.file-path is required for the file sink"))
	}
	if o.Sink == AuditSinkPebble && o.PebbleDir == "" {
		errors = append(errors, fmt.Errorf("--audit.pebble-dir is required for the pebble sink"))
	}

	return errors
}

func (o *AuditOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Sink, "audit.sink", o.Sink, "Durable sink for the audit log: none, file, s3 or pebble.")
	fs.IntVar(&o.Capacity, "audit.capacity", o.Capacity, "Records buffered in memory while the sink is slow or down.")
	fs.IntVar(&o.BatchSize, "audit.batch-size", o.BatchSize, "Maximum records written per flush.")
	fs.DurationVar(&o.FlushInterval, "audit.flush-interval", o.FlushInterval, "Interval between flushes.")
	fs.DurationVar(&o.MinBackoff, "audit.min-backoff", o.MinBackoff, "Initial retry delay after a failed flush.")
	fs.DurationVar(&o.MaxBackoff, "audit.max-backoff", o.MaxBackoff, "Maximum retry delay after failed flushes.")

	fs.StringVar(&o.FilePath, "audit.file-path", o.FilePath, "JSONL file written by the file sink.")
	fs.IntVar(&o.FileMaxSizeMB, "audit.file-max-size", o.FileMaxSizeMB, "Megabytes before the audit file is rotated.")
	fs.IntVar(&o.FileMaxBackups, "audit.file-max-backups", o.FileMaxBackups, "Rotated audit files to keep.")
	fs.IntVar(&o.FileMaxAgeDays, "audit.file-max-age", o.FileMaxAgeDays, "Days to keep rotated audit files.")
	fs.BoolVar(&o.FileCompress, "audit.file-compress", o.FileCompress, "Gzip rotated audit files.")

	fs.StringVar(&o.PebbleDir, "audit.pebble-dir", o.PebbleDir, "Directory of the pebble audit store.")
}
