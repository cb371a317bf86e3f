// Package idpmemory holds identity attributes in memory. Used by the dev
// server and tests in place of a real user pool.
package idpmemory

import (
	"context"
	"sync"
)

// Writer stores attributes per username in process memory.
type Writer struct {
	mu    sync.Mutex
	users map[string]map[string]string
}

// NewWriter creates an empty in-memory attribute writer.
func NewWriter() *Writer {
	return &Writer{users: make(map[string]map[string]string)}
}

// SetIdentityAttributes merges attrs into the stored set for username.
func (w *Writer) SetIdentityAttributes(_ context.Context, username, _ string, attrs map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	stored, ok := w.users[username]
	if !ok {
		stored = make(map[string]string, len(attrs))
		w.users[username] = stored
	}
	for name, value := range attrs {
		stored[name] = value
	}
	return nil
}

// Attributes returns a copy of the stored attributes for username.
func (w *Writer) Attributes(username string) map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]string, len(w.users[username]))
	for name, value := range w.users[username] {
		out[name] = value
	}
	return out
}
