package logger

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry is one line of an operation log.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// OperationLog keeps the most recent entries of one diagnostic session so
// they can be shown to the operator.
type OperationLog struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewOperationLog keeps at most limit entries (1000 if limit <= 0).
func NewOperationLog(limit int) *OperationLog {
	if limit <= 0 {
		limit = 1000
	}
	return &OperationLog{limit: limit}
}

// Core returns a zap core writing Info and above into the log.
func (l *OperationLog) Core() zapcore.Core {
	return &opCore{LevelEnabler: zapcore.InfoLevel, log: l}
}

// Entries returns a copy of the buffered entries, oldest first.
func (l *OperationLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *OperationLog) append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.limit {
		l.entries = append(l.entries[:0], l.entries[1:]...)
	}
	l.entries = append(l.entries, e)
}

type opCore struct {
	zapcore.LevelEnabler
	log    *OperationLog
	fields []zapcore.Field
}

func (c *opCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &opCore{LevelEnabler: c.LevelEnabler, log: c.log, fields: merged}
}

func (c *opCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *opCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	e := Entry{Time: ent.Time, Level: ent.Level.CapitalString(), Message: ent.Message}
	if len(enc.Fields) > 0 {
		e.Fields = enc.Fields
	}
	c.log.append(e)
	return nil
}

func (c *opCore) Sync() error { return nil }
