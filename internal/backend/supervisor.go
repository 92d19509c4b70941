// Package backend discovers and spawns the build-server child process,
// exposing its stdio as plain io.Reader/io.WriteCloser streams for the
// interceptor to frame. Grounded on the reference client's own server
// discovery and spawn routine, generalized to the four-tier search order
// and liveness watch this module adds.
package backend

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/rockerboo/lean-proof-bridge/internal/errs"
	"github.com/rockerboo/lean-proof-bridge/internal/logging"
)

const (
	envBackendOverride = "LEAN_DAG_SERVER"
	envWorkerPath      = "LEAN_WORKER_PATH"

	packageRelBinary = ".lake/packages/LeanDag/.lake/build/bin/lean-dag"

	genericCommand = "lake"
)

var genericArgs = []string{"serve"}

// Supervisor owns the build-server child process and its liveness watch.
type Supervisor struct {
	cmd         *exec.Cmd
	watcher     *fsnotify.Watcher
	resolved    string
	specialized bool
}

// Options configures Find/Spawn.
type Options struct {
	// BackendOverride is tried first (e.g. from config/flag), taking
	// priority over the LEAN_DAG_SERVER environment variable.
	BackendOverride string

	// PrettyPrinterOptions are passed after `--` when the specialized
	// binary is launched.
	PrettyPrinterOptions []string

	// LogPath receives the child's stderr.
	LogPath string
}

// find locates the build-server binary, returning the resolved path, whether
// it is the specialized variant, and every path tried if none was found.
func find(opts Options) (path string, specialized bool, searched []string, err error) {
	if opts.BackendOverride != "" {
		if isExecutable(opts.BackendOverride) {
			return opts.BackendOverride, true, nil, nil
		}
		searched = append(searched, fmt.Sprintf("--backend=%s", opts.BackendOverride))
	}

	if envPath := os.Getenv(envBackendOverride); envPath != "" {
		if isExecutable(envPath) {
			return envPath, true, nil, nil
		}
		searched = append(searched, fmt.Sprintf("$%s=%s", envBackendOverride, envPath))
	}

	cwd, cwdErr := os.Getwd()
	if cwdErr == nil {
		projectLocal := filepath.Join(cwd, packageRelBinary)
		searched = append(searched, projectLocal)
		if isExecutable(projectLocal) {
			return projectLocal, true, nil, nil
		}

		for _, siblingName := range []string{"LeanDag", "lean-dag"} {
			sibling := filepath.Join(filepath.Dir(cwd), siblingName, packageRelBinary)
			searched = append(searched, sibling)
			if isExecutable(sibling) {
				return sibling, true, nil, nil
			}
		}
	}

	if genericPath, lookErr := exec.LookPath(genericCommand); lookErr == nil {
		return genericPath, false, nil, nil
	}
	searched = append(searched, genericCommand+" (on $PATH)")

	return "", false, searched, errs.NewBackendNotFound(searched)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// Spawn discovers and launches the build-server child, returning its piped
// stdout (to read framed messages from) and stdin (to write framed messages
// to) plus a Supervisor handle to manage its lifetime.
func Spawn(opts Options) (sup *Supervisor, stdout io.Reader, stdin io.WriteCloser, err error) {
	path, specialized, _, err := find(opts)
	if err != nil {
		return nil, nil, nil, err
	}

	logging.Info("resolved build-server binary", "path", path, "specialized", specialized)

	var cmd *exec.Cmd
	if specialized {
		ppArgs := make([]string, 0, len(opts.PrettyPrinterOptions)*2)
		for _, o := range opts.PrettyPrinterOptions {
			ppArgs = append(ppArgs, "-D", o)
		}
		args := append([]string{"--"}, ppArgs...)
		cmd = exec.Command(path, args...)
		cmd.Env = append(scrubLeanEnv(os.Environ()), envWorkerPath+"="+path)
	} else {
		cmd = exec.Command(path, genericArgs...)
		cmd.Env = os.Environ()
	}

	stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, errs.WrapIo(err, "opening build-server stdin pipe")
	}
	stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, errs.WrapIo(err, "opening build-server stdout pipe")
	}

	logFile, logErr := os.OpenFile(opts.LogPath+".backend", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if logErr == nil {
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, errs.WrapIo(err, fmt.Sprintf("starting build-server %s", path))
	}

	sup = &Supervisor{cmd: cmd, resolved: path, specialized: specialized}
	sup.watchLiveness()

	return sup, stdout, stdin, nil
}

func scrubLeanEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, "LEAN_PATH=") || strings.HasPrefix(kv, "LEAN_SYSROOT=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// watchLiveness starts an fsnotify watch on the directory containing the
// resolved binary; a removal or rewrite while the child is running is
// logged as a structured warning. No automatic restart.
func (s *Supervisor) watchLiveness() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("liveness watch unavailable", "error", err.Error())
		return
	}
	dir := filepath.Dir(s.resolved)
	if err := watcher.Add(dir); err != nil {
		logging.Warn("liveness watch failed to add directory", "dir", dir, "error", err.Error())
		watcher.Close()
		return
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.resolved {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Write|fsnotify.Rename) != 0 {
					logging.Warn("build-server binary changed while running",
						"path", s.resolved, "op", event.Op.String())
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("liveness watch error", "error", watchErr.Error())
			}
		}
	}()
}

// Wait blocks until the child process exits.
func (s *Supervisor) Wait() error {
	return s.cmd.Wait()
}

// Close stops the liveness watch and signals the child to terminate.
func (s *Supervisor) Close() error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.cmd.Process != nil {
		return s.cmd.Process.Kill()
	}
	return nil
}

// ResolvedPath is the binary path this supervisor launched.
func (s *Supervisor) ResolvedPath() string { return s.resolved }

// Specialized reports whether the resolved binary is the specialized
// variant (as opposed to the generic `lake serve` fallback).
func (s *Supervisor) Specialized() bool { return s.specialized }
