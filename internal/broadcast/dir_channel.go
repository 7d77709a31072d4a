package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fieldsync/internal/logging"
)

const (
	messageExt      = ".json"
	tempPrefix      = ".tmp-"
	defaultRetained = time.Minute
)

// DirChannel shares messages with every process watching the same directory.
// Local subscribers are served by an embedded Hub; each publish is also
// written as a file that other DirChannels pick up. A channel ignores the
// files it wrote itself.
type DirChannel struct {
	*Hub

	dir       string
	retention time.Duration
	watcher   *fsnotify.Watcher

	seenMu sync.Mutex
	seen   map[string]time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// OpenDir starts watching dir, creating it when missing. Files older than
// retention are pruned periodically.
func OpenDir(dir string, retention time.Duration, logger *slog.Logger) (*DirChannel, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("broadcast directory is required")
	}
	if retention <= 0 {
		retention = defaultRetained
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create broadcast directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch broadcast directory %s: %w", dir, err)
	}

	ch := &DirChannel{
		Hub:       NewHub(logger),
		dir:       dir,
		retention: retention,
		watcher:   watcher,
		seen:      make(map[string]time.Time),
		done:      make(chan struct{}),
	}
	ch.Hub.logger = ch.Hub.logger.With(logging.String("broadcast_dir", dir))
	ch.wg.Add(2)
	go ch.processEvents()
	go ch.pruneLoop()
	return ch, nil
}

// Dir returns the shared directory.
func (c *DirChannel) Dir() string {
	return c.dir
}

// Publish delivers msg to local subscribers and writes it for other processes.
func (c *DirChannel) Publish(ctx context.Context, msg Message) error {
	if !msg.Type.Known() {
		return nil
	}
	msg = c.stamp(msg)
	c.markSeen(msg.MessageID)
	c.deliver(msg)
	return c.write(msg)
}

func (c *DirChannel) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broadcast message: %w", err)
	}
	name := fmt.Sprintf("%020d-%s%s", msg.SentAt.UnixNano(), msg.MessageID, messageExt)
	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create broadcast file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write broadcast file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close broadcast file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish broadcast file: %w", err)
	}
	return nil
}

// Close stops watching. Files already written are left for pruning.
func (c *DirChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.watcher.Close()
		c.wg.Wait()
		_ = c.Hub.Close()
	})
	return err
}

func (c *DirChannel) processEvents() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			c.handleFile(event.Name)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(c.logger, "broadcast watcher error", "broadcast_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "messages from other processes may be missed"),
			)
		}
	}
}

func (c *DirChannel) handleFile(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, tempPrefix) || !strings.HasSuffix(base, messageExt) {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("read broadcast file failed", logging.String("file", base), logging.Error(err))
		}
		return
	}
	msg, ok := Decode(data)
	if !ok {
		c.logger.Debug("ignoring broadcast file", logging.String("file", base))
		return
	}
	if msg.Origin == c.origin || !c.markSeen(msg.MessageID) {
		return
	}
	c.deliver(msg)
}

// markSeen records id and reports whether it was new.
func (c *DirChannel) markSeen(id string) bool {
	if id == "" {
		return true
	}
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = time.Now()
	return true
}

func (c *DirChannel) pruneLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.retention / 2)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.prune(time.Now())
		}
	}
}

func (c *DirChannel) prune(now time.Time) {
	cutoff := now.Add(-c.retention)

	c.seenMu.Lock()
	for id, at := range c.seen {
		if at.Before(cutoff) {
			delete(c.seen, id)
		}
	}
	c.seenMu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Debug("list broadcast directory failed", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("prune broadcast file failed", logging.String("file", entry.Name()), logging.Error(err))
		}
	}
}
