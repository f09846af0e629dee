// Package inbox broadcasts text files dropped into a directory. Each settled
// *.txt or *.md file is sent once and then moved to sent/ or failed/.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/Dicklesworthstone/chatcast/internal/broadcast"
	"github.com/Dicklesworthstone/chatcast/internal/debounce"
)

const (
	SentDir   = "sent"
	FailedDir = "failed"

	defaultSettle      = 500 * time.Millisecond
	defaultBusyBackoff = time.Second
	defaultQueueSize   = 64

	// maxFileSize rejects files that are clearly not a chat message.
	maxFileSize = 256 << 10
)

// Sender runs a broadcast. broadcast.Orchestrator satisfies it.
type Sender interface {
	Broadcast(ctx context.Context, message string) (*broadcast.Result, error)
}

// Processed describes one handled file.
type Processed struct {
	Path    string
	MovedTo string
	Result  *broadcast.Result
	Err     error
}

// Config configures a Watcher.
type Config struct {
	Dir string

	// Settle is how long a file must be quiet before it is read.
	Settle time.Duration

	// BusyBackoff is the wait before retrying a file that arrived while
	// another broadcast was running.
	BusyBackoff time.Duration

	// MinInterval spaces consecutive inbox broadcasts. Zero sends as fast
	// as files settle.
	MinInterval time.Duration

	Logger *slog.Logger

	// OnProcessed is called after each file has been moved.
	OnProcessed func(Processed)
}

// Watcher watches one directory, not recursively.
type Watcher struct {
	dir    string
	sender Sender
	config Config
	logger *slog.Logger

	fsWatcher *fsnotify.Watcher
	settle    *debounce.Table
	queue     chan string
	limiter   *rate.Limiter

	mu       sync.Mutex
	inflight map[string]struct{}

	closeOnce sync.Once
}

// New creates the directory and its sent/ and failed/ children if needed and
// starts watching it. Call Run to process files.
func New(sender Sender, cfg Config) (*Watcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("inbox dir is required")
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.BusyBackoff <= 0 {
		cfg.BusyBackoff = defaultBusyBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("abs inbox dir: %w", err)
	}
	for _, d := range []string{dir, filepath.Join(dir, SentDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return nil, fmt.Errorf("ensure %s exists: %w", d, err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	return &Watcher{
		dir:       dir,
		sender:    sender,
		config:    cfg,
		logger:    cfg.Logger.With("inbox", dir),
		fsWatcher: fsw,
		settle:    debounce.New(cfg.Settle),
		queue:     make(chan string, defaultQueueSize),
		limiter:   limiter,
		inflight:  make(map[string]struct{}),
	}, nil
}

// Dir returns the absolute inbox path.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes files already present and then every new one until ctx is
// done. Files are broadcast one at a time in arrival order.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx, stop)
	}()
	defer wg.Wait()
	defer close(stop)

	w.scan()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if accept(evt.Name) && filepath.Dir(filepath.Clean(evt.Name)) == w.dir {
				w.schedule(filepath.Clean(evt.Name))
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// Close stops watching and drops any pending files. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.settle.Close()
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("inbox scan failed", "error", err)
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && accept(e.Name()) {
			w.schedule(filepath.Join(w.dir, e.Name()))
		}
	}
}

// schedule enqueues path once it has been quiet for the settle period.
// Writes arriving in the meantime restart the wait.
func (w *Watcher) schedule(path string) {
	w.settle.Trigger(path, func() {
		select {
		case w.queue <- path:
		default:
			w.logger.Warn("inbox queue full, file left in place", "file", filepath.Base(path))
		}
	})
}

func (w *Watcher) work(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case path := <-w.queue:
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.mu.Lock()
	if _, dup := w.inflight[path]; dup {
		w.mu.Unlock()
		return
	}
	w.inflight[path] = struct{}{}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inflight, path)
		w.mu.Unlock()
	}()

	name := filepath.Base(path)
	message, err := readMessage(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Moved away or already handled.
		return
	}

	var res *broadcast.Result
	if err == nil {
		if werr := w.limiter.Wait(ctx); werr != nil {
			// Shutting down; the file stays for the next run.
			return
		}
		res, err = w.sender.Broadcast(ctx, message)
	}

	if errors.Is(err, broadcast.ErrBusy) {
		w.logger.Debug("broadcast busy, retrying file later", "file", name)
		time.AfterFunc(w.config.BusyBackoff, func() { w.schedule(path) })
		return
	}

	dest := SentDir
	if err != nil {
		dest = FailedDir
	}
	movedTo, moveErr := w.move(path, dest)
	if moveErr != nil {
		w.logger.Error("move inbox file failed", "file", name, "error", moveErr)
	}

	if err != nil {
		w.logger.Warn("inbox file not broadcast", "file", name, "error", err, "action", "inbox")
	} else {
		w.logger.Info("inbox file broadcast",
			"file", name,
			"cycle_id", res.CycleID,
			"delivered", res.Delivered(),
			"action", "inbox")
	}

	if w.config.OnProcessed != nil {
		w.config.OnProcessed(Processed{Path: path, MovedTo: movedTo, Result: res, Err: err})
	}
}

func (w *Watcher) move(path, sub string) (string, error) {
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	dest := filepath.Join(w.dir, sub, stamp+"-"+filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// readMessage returns the file contents without trailing line breaks.
func readMessage(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxFileSize {
		return "", fmt.Errorf("file is %d bytes, larger than the %d byte limit", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// accept reports whether name is a message file. Hidden and editor temp
// files are skipped.
func accept(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".txt", ".md":
		return true
	}
	return false
}
