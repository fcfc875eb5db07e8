package sentinel

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// termGrace is how long a stopped child gets between SIGTERM and SIGKILL.
	termGrace = 10 * time.Second

	// restartDelayMin is the first restart delay after an abnormal exit.
	restartDelayMin = 5 * time.Second

	// restartDelayMax caps the restart delay.
	restartDelayMax = 10 * time.Minute

	// restartDelayGrowth multiplies the delay on each successive failure.
	restartDelayGrowth = 2.0

	// steadyRunTime is how long the child must stay up before the delay resets.
	steadyRunTime = 30 * time.Second

	// rehashDelay is the settle time after a filesystem event before the
	// binary is rehashed. Atomic deploys emit several events in a burst.
	rehashDelay = 100 * time.Millisecond
)

// Sentinel supervises a child copy of the server binary. It restarts the
// child when it crashes, with exponential backoff, and when the binary on
// disk is replaced by a deploy.
type Sentinel struct {
	binary string
	args   []string
	log    *slog.Logger
	delay  time.Duration
	done   chan struct{}

	mu      sync.Mutex
	lastSum [sha256.Size]byte
}

// New returns a Sentinel that supervises binary, launching it with args.
func New(binary string, args ...string) *Sentinel {
	return &Sentinel{
		binary: binary,
		args:   args,
		log:    slog.Default().With("component", "sentinel"),
		delay:  restartDelayMin,
		done:   make(chan struct{}),
	}
}

// Supervise resolves the current executable, following symlinks so the real
// file location is watched, and runs a Sentinel over it with the given child
// arguments. It blocks until SIGINT or SIGTERM is received.
func Supervise(args ...string) error {
	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	binary, err = filepath.EvalSymlinks(binary)
	if err != nil {
		return fmt.Errorf("resolve symlinks for %s: %w", binary, err)
	}
	return New(binary, args...).Run()
}

// Run starts the supervision loop: launch the child, watch the binary for
// replacement, restart on exit. It blocks until SIGINT or SIGTERM.
func (s *Sentinel) Run() error {
	sum, err := Checksum(s.binary)
	if err != nil {
		return fmt.Errorf("checksum binary: %w", err)
	}
	s.setChecksum(sum)
	s.log.Info("sentinel started", "binary", s.binary, "checksum", shortSum(sum))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reloadCh := make(chan struct{}, 1)
	go s.watch(reloadCh)
	defer close(s.done)

	for {
		child, err := s.launch()
		if err != nil {
			s.log.Error("start child", "error", err)
			if !s.waitDelay(sigCh) {
				return nil
			}
			s.raiseDelay()
			continue
		}

		started := time.Now()
		exited := make(chan error, 1)
		go func() {
			exited <- child.Wait()
		}()

		select {
		case err := <-exited:
			elapsed := time.Since(started)
			if err != nil {
				s.log.Error("child exited abnormally", "error", err, "after", elapsed.String())
				if elapsed >= steadyRunTime {
					s.delay = restartDelayMin
				}
				if !s.waitDelay(sigCh) {
					return nil
				}
				s.raiseDelay()
				continue
			}
			// The child serves forever, so even a clean exit means restart.
			s.log.Warn("child exited cleanly", "after", elapsed.String())
			s.delay = restartDelayMin
			time.Sleep(time.Second)

		case <-reloadCh:
			s.log.Info("binary replaced, restarting child")
			s.terminate(child)
			<-exited
			if sum, err := Checksum(s.binary); err == nil {
				s.setChecksum(sum)
				s.log.Info("new binary checksum", "checksum", shortSum(sum))
			}
			s.delay = restartDelayMin

		case sig := <-sigCh:
			s.log.Info("shutting down", "signal", sig.String())
			s.terminate(child)
			<-exited
			return nil
		}
	}
}

// launch starts a fresh copy of the binary with the configured arguments.
// The child inherits the environment and the sentinel's stdout/stderr.
func (s *Sentinel) launch() (*exec.Cmd, error) {
	child := exec.Command(s.binary, s.args...)
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Env = os.Environ()

	if err := child.Start(); err != nil {
		return nil, fmt.Errorf("exec %s %s: %w", s.binary, strings.Join(s.args, " "), err)
	}
	s.log.Info("child started", "pid", child.Process.Pid)
	return child, nil
}

// terminate sends SIGTERM and escalates to SIGKILL after the grace
// period. The caller keeps ownership of the Wait on the child.
func (s *Sentinel) terminate(child *exec.Cmd) {
	if child == nil || child.Process == nil {
		return
	}
	pid := child.Process.Pid
	s.log.Info("stopping child", "pid", pid)
	if err := child.Process.Signal(syscall.SIGTERM); err != nil {
		// Most likely the process already exited.
		s.log.Warn("signal child", "pid", pid, "error", err)
		return
	}
	go func() {
		time.Sleep(termGrace)
		if err := child.Process.Signal(syscall.Signal(0)); err == nil {
			s.log.Warn("grace period expired, killing child", "pid", pid)
			if err := child.Process.Kill(); err != nil {
				s.log.Error("kill child", "pid", pid, "error", err)
			}
		}
	}()
}

// watch observes the directory containing the binary and signals reloadCh
// when the binary's checksum changes. The directory is watched rather than
// the file itself because atomic deploys (write to a temp file, rename over
// the binary) swap the inode out from under a file watch.
func (s *Sentinel) watch(reloadCh chan<- struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Error("create watcher", "error", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(s.binary)
	name := filepath.Base(s.binary)
	if err := watcher.Add(dir); err != nil {
		s.log.Error("watch directory", "dir", dir, "error", err)
		return
	}
	s.log.Info("watching for binary updates", "dir", dir, "binary", name)

	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			// Create covers the rename landing in an atomic deploy.
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			s.log.Debug("filesystem event", "op", ev.Op.String(), "name", ev.Name)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(rehashDelay, func() {
				s.rehash(reloadCh)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Error("watcher error", "error", err)

		case <-s.done:
			return
		}
	}
}

// rehash recomputes the binary's checksum and signals reloadCh when it
// differs from the last known one.
func (s *Sentinel) rehash(reloadCh chan<- struct{}) {
	sum, err := Checksum(s.binary)
	if err != nil {
		s.log.Error("checksum binary", "error", err)
		return
	}
	if sum == s.checksum() {
		s.log.Debug("checksum unchanged, ignoring event")
		return
	}
	select {
	case reloadCh <- struct{}{}:
	default:
	}
}

// waitDelay waits out the current restart delay. It returns false when an
// OS signal interrupts the wait, meaning the sentinel should exit.
func (s *Sentinel) waitDelay(sigCh <-chan os.Signal) bool {
	s.log.Info("waiting before restart", "delay", s.delay.String())
	select {
	case <-time.After(s.delay):
		return true
	case sig := <-sigCh:
		s.log.Info("shutting down during restart delay", "signal", sig.String())
		return false
	}
}

// raiseDelay multiplies the restart delay, capping it.
func (s *Sentinel) raiseDelay() {
	s.delay = time.Duration(float64(s.delay) * restartDelayGrowth)
	if s.delay > restartDelayMax {
		s.delay = restartDelayMax
	}
}

func (s *Sentinel) checksum() [sha256.Size]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSum
}

func (s *Sentinel) setChecksum(sum [sha256.Size]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSum = sum
}

// Checksum computes the SHA256 digest of the file at path.
func Checksum(path string) ([sha256.Size]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("read %s: %w", path, err)
	}

	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func shortSum(sum [sha256.Size]byte) string {
	return fmt.Sprintf("%x", sum[:8])
}
