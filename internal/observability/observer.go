// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package observability provides the engine's lightweight operation log:
// per-operation timing records, emitted as JSON lines in debug mode and
// suppressed otherwise.
package observability

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

type Level int

const (
	LevelOff     Level = 0
	LevelMetrics Level = 1
	LevelDebug   Level = 2
)

// Observer records component operations. Safe for concurrent use; page
// workers share one observer.
type Observer struct {
	level  Level
	mu     sync.Mutex
	writer io.Writer
}

// NewObserver creates an observer writing to w. A nil writer silences it.
func NewObserver(level Level, w io.Writer) *Observer {
	if w == nil {
		level = LevelOff
	}
	return &Observer{level: level, writer: w}
}

// StartTiming returns a completion function that logs the operation with
// its duration once called.
func (o *Observer) StartTiming(component, operation string) func(success bool, metadata map[string]any) {
	start := time.Now()
	return func(success bool, metadata map[string]any) {
		o.Log(Record{
			Component:  component,
			Operation:  operation,
			DurationMs: time.Since(start).Milliseconds(),
			Success:    success,
			Metadata:   metadata,
		})
	}
}

// Log writes one operation record.
func (o *Observer) Log(rec Record) {
	if o.level < LevelDebug {
		return
	}
	rec.Timestamp = time.Now().Format(time.RFC3339)
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = json.NewEncoder(o.writer).Encode(rec)
}

// Record is one logged operation.
type Record struct {
	Component  string         `json:"component"`
	Operation  string         `json:"operation"`
	Timestamp  string         `json:"timestamp"`
	DurationMs int64          `json:"duration_ms"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
