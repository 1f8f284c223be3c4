// CLAUDE:SUMMARY Dry-run Channel writing embeds as JSON lines to an io.Writer (defaults to stdout).
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

// Stdout writes each sent embed as a JSON line to an io.Writer (default
// os.Stdout). It remembers what it sent so Recent and Delete behave like a
// real channel within one session.
type Stdout struct {
	mu     sync.Mutex
	enc    *json.Encoder
	posted []Posted
	seq    int
}

// NewStdout creates a Stdout channel. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Recent(_ context.Context, limit int) ([]Posted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.posted)
	slices.Reverse(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Stdout) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.posted, func(p Posted) bool { return p.ID == id })
	if i < 0 {
		return fmt.Errorf("stdout: unknown message %s", id)
	}
	s.posted = slices.Delete(s.posted, i, i+1)
	return s.enc.Encode(envelope{Type: "delete", ID: id})
}

func (s *Stdout) Send(_ context.Context, e Embed) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("dry-%d", s.seq)
	if err := s.enc.Encode(envelope{Type: "send", ID: id, Embed: &e}); err != nil {
		return "", &ErrSendFailed{Channel: "stdout", Platform: "stdout", Cause: err}
	}
	s.posted = append(s.posted, Posted{ID: id, Title: e.Title})
	return id, nil
}

func (s *Stdout) Close() error { return nil }

type envelope struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Embed *Embed `json:"embed,omitempty"`
}
