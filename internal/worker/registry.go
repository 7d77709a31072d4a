package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"fieldsync/internal/logging"
)

// ErrInvalidTag rejects empty or whitespace-bearing tags.
var ErrInvalidTag = errors.New("invalid sync tag")

// Registrar arms a background sync that runs once connectivity allows.
type Registrar interface {
	Register(ctx context.Context, tag string) error
}

// Registry is the host background-sync implementation. Armed tags fire
// once, on the next call to Fire, by posting a sync message to the target.
// Registering an armed tag again is a no-op.
type Registry struct {
	target Poster
	logger *slog.Logger

	mu    sync.Mutex
	armed map[string]struct{}
}

// NewRegistry builds a registry that posts to target.
func NewRegistry(target Poster, logger *slog.Logger) *Registry {
	return &Registry{
		target: target,
		logger: logging.NewComponentLogger(logger, "background-sync"),
		armed:  make(map[string]struct{}),
	}
}

// Register arms tag.
func (r *Registry) Register(_ context.Context, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.ContainsAny(tag, " \t\n") {
		return ErrInvalidTag
	}
	r.mu.Lock()
	r.armed[tag] = struct{}{}
	r.mu.Unlock()
	r.logger.Debug("background sync armed", logging.String("tag", tag))
	return nil
}

// Armed returns the armed tags in sorted order.
func (r *Registry) Armed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags := make([]string, 0, len(r.armed))
	for tag := range r.armed {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Fire posts one sync message per armed tag and disarms them. It returns the
// number of tags fired. Tags whose post was refused stay armed.
func (r *Registry) Fire(reason string) int {
	tags := r.Armed()
	if len(tags) == 0 || r.target == nil {
		return 0
	}
	fired := 0
	for _, tag := range tags {
		if !r.target.Post(Message{Type: MsgSync, Tag: tag, Trigger: "background"}) {
			continue
		}
		r.mu.Lock()
		delete(r.armed, tag)
		r.mu.Unlock()
		fired++
	}
	if fired > 0 {
		r.logger.Info("background sync fired",
			logging.String(logging.FieldEventType, "background_sync_fired"),
			logging.String("reason", reason),
			logging.Int("tags", fired),
		)
	}
	return fired
}
