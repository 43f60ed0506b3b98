package sink

import (
	"context"
	"fmt"

	"github.com/hydronom-io/hydronom/internal/relay/core/recorder"
	"github.com/hydronom-io/hydronom/pkg/options"
)

// Open builds the sink selected by audit. The returned close function is
// never nil.
func Open(ctx context.Context, audit *options.AuditOptions, s3 *options.S3Options) (recorder.Sink, func() error, error) {
	noop := func() error { return nil }

	switch audit.Sink {
	case options.AuditSinkNone:
		return Discard{}, noop, nil
	case options.AuditSinkFile:
		f, err := NewFile(FileOptions{
			Path:       audit.FilePath,
			MaxSizeMB:  audit.FileMaxSizeMB,
			MaxBackups: audit.FileMaxBackups,
			MaxAgeDays: audit.FileMaxAgeDays,
			Compress:   audit.FileCompress,
		})
		if err != nil {
			return nil, noop, err
		}
		return f, f.Close, nil
	case options.AuditSinkPebble:
		p, err := OpenPebble(audit.PebbleDir)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case options.AuditSinkS3:
		s, err := NewS3(ctx, s3)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown audit sink %q", audit.Sink)
	}
}
