package agentmux

import (
	"errors"

	"github.com/fsnotify/fsnotify"

	"github.com/agentmux/agentmux/internal/logging"
)

// ErrNoWorkspace is returned by WatchWorkspace on sessions without a
// persistent workspace.
var ErrNoWorkspace = errors.New("agentmux: session has no workspace; create it with InfiniteSessions")

// WatchWorkspace watches the session's workspace directory and calls fn
// with the path of every file the runtime creates or rewrites there
// (checkpoints, plans, compacted context). The returned function stops the
// watch.
func (s *Session) WatchWorkspace(fn func(path string)) (func(), error) {
	dir := s.WorkspacePath()
	if dir == "" {
		return nil, ErrNoWorkspace
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	log := logging.Component("workspace")
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
					fn(ev.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Debug().Str("session_id", s.ID).Err(err).Msg("workspace watch error")
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
