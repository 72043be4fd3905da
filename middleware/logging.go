package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/illarion/cloudvault/storage"
)

type logged struct {
	next storage.Storage
	log  *slog.Logger
}

// Logging logs every operation at debug level, and failures at warn.
// A nil logger uses slog.Default.
func Logging(next storage.Storage, log *slog.Logger) storage.Storage {
	if log == nil {
		log = slog.Default()
	}
	return &logged{next: next, log: log.With("component", "storage")}
}

func (l *logged) record(ctx context.Context, op, id string, size int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.Duration("duration", time.Since(start)),
	}
	if id != "" {
		attrs = append(attrs, slog.String("id", id))
	}
	if size >= 0 {
		attrs = append(attrs, slog.Int("bytes", size))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
		l.log.LogAttrs(ctx, slog.LevelWarn, "storage operation failed", attrs...)
		return
	}
	l.log.LogAttrs(ctx, slog.LevelDebug, "storage operation", attrs...)
}

func (l *logged) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	start := time.Now()
	list, err := l.next.List(ctx)
	l.record(ctx, "list", "", len(list), start, err)
	return list, err
}

func (l *logged) Create(ctx context.Context, name string) (string, error) {
	start := time.Now()
	id, err := l.next.Create(ctx, name)
	logID := id
	if logID == "" {
		logID = name
	}
	l.record(ctx, "create", logID, -1, start, err)
	return id, err
}

func (l *logged) Get(ctx context.Context, id string) ([]byte, error) {
	start := time.Now()
	data, err := l.next.Get(ctx, id)
	l.record(ctx, "get", id, len(data), start, err)
	return data, err
}

func (l *logged) Update(ctx context.Context, id string, data []byte) error {
	start := time.Now()
	err := l.next.Update(ctx, id, data)
	l.record(ctx, "update", id, len(data), start, err)
	return err
}

func (l *logged) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := l.next.Delete(ctx, id)
	l.record(ctx, "delete", id, -1, start, err)
	return err
}

func (l *logged) Close() error {
	return storage.Close(l.next)
}
