package transcript

import (
	"context"
	"fmt"
	"strings"
)

// NewSink opens the backend named by url:
//
//	""                              in-memory
//	postgres://... postgresql://... PostgreSQL
//	sqlite:///path/to/file.db       SQLite
func NewSink(ctx context.Context, url string) (Sink, string, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "" || url == "memory":
		return NewInMemorySink(0), "memory", nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		s, err := NewPostgresSink(ctx, url)
		if err != nil {
			return nil, "", err
		}
		return s, "postgres", nil
	case strings.HasPrefix(url, "sqlite://"):
		s, err := NewSQLiteSink(ctx, strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, "", err
		}
		return s, "sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported TRANSCRIPT_URL scheme in %q", url)
	}
}
