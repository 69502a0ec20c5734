package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"filebuttons/pkg/log"
)

// liveOptions can be applied to a running controller. Everything else
// needs the lines or backends to be reopened.
var liveOptions = map[string]bool{
	"short_window":      true,
	"long_window":       true,
	"reconnect":         true,
	"show_event_number": true,
	"extensions":        true,
	"sample_levels":     true,
	"call_timeout":      true,
	"origin":            true,
}

// ReloadResult describes one successful reload.
type ReloadResult struct {
	Settings *Settings
	// Changed lists every option whose value differs from the previous load.
	Changed []string
	// RestartRequired lists the changed options that are not applied live.
	RestartRequired []string
}

// ReloadManager watches the config file and re-decodes the filebuttons
// options when it changes.
type ReloadManager struct {
	mu sync.RWMutex

	// configPath is the path to watch for changes
	configPath string

	// current holds the raw options of the last successful load
	current map[string]interface{}

	// debounceTime is how long to wait after a change before reloading
	debounceTime time.Duration

	// onReload is called after a reload with at least one change
	onReload func(ReloadResult)

	// onError is called when a changed file fails to load
	onError func(error)

	log *log.Logger
}

// NewReloadManager creates a reload manager for path, starting from the
// options that are currently in effect.
func NewReloadManager(path string, current map[string]interface{}) *ReloadManager {
	return &ReloadManager{
		configPath:   path,
		current:      current,
		debounceTime: 100 * time.Millisecond,
		log:          log.GetLogger("config"),
	}
}

// SetDebounceTime sets how long to wait after detecting a change before reloading.
func (rm *ReloadManager) SetDebounceTime(d time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debounceTime = d
}

// SetCallback sets the function called after each effective reload.
func (rm *ReloadManager) SetCallback(fn func(ReloadResult)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.onReload = fn
}

// SetErrorCallback sets the function called when a reload fails. The
// previous settings stay in effect.
func (rm *ReloadManager) SetErrorCallback(fn func(error)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.onError = fn
}

// DetectChanges compares new options with the current ones and returns
// the sorted names of options that were added, removed or modified.
func (rm *ReloadManager) DetectChanges(opts map[string]interface{}) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return detectChanges(rm.current, opts)
}

func detectChanges(old, new map[string]interface{}) []string {
	var changed []string
	for k, v := range new {
		ov, ok := old[k]
		if !ok || fmt.Sprint(ov) != fmt.Sprint(v) {
			changed = append(changed, k)
		}
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// HasNonReloadableChanges returns the changed options that need a restart.
func HasNonReloadableChanges(changed []string) []string {
	var out []string
	for _, k := range changed {
		if !liveOptions[k] {
			out = append(out, k)
		}
	}
	return out
}

// ReloadFromFile reloads the options from disk. It returns nil without
// error when nothing changed. On a decode or validation error the
// current options stay in effect.
func (rm *ReloadManager) ReloadFromFile() (*ReloadResult, error) {
	opts, err := LoadOptions(rm.configPath)
	if err != nil {
		return nil, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	changed := detectChanges(rm.current, opts)
	if len(changed) == 0 {
		return nil, nil
	}
	settings, err := DecodeSettings(opts)
	if err != nil {
		return nil, err
	}
	rm.current = opts
	return &ReloadResult{
		Settings:        settings,
		Changed:         changed,
		RestartRequired: HasNonReloadableChanges(changed),
	}, nil
}

// Watch blocks watching the config file and the files it includes until
// ctx is done. Bursts of file events are coalesced into one reload after
// the debounce time. The include list is refreshed after every reload.
func (rm *ReloadManager) Watch(ctx context.Context) error {
	abs, err := filepath.Abs(rm.configPath)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Editors often replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}
	dirs := map[string]bool{filepath.Dir(abs): true}
	watched := map[string]bool{abs: true}
	refresh := func() {
		files, err := SourceFiles(rm.configPath)
		if err != nil {
			rm.log.WithError(err).Debug("cannot resolve included files")
			return
		}
		watched = map[string]bool{abs: true}
		for _, f := range files {
			watched[f] = true
			d := filepath.Dir(f)
			if dirs[d] {
				continue
			}
			if err := w.Add(d); err != nil {
				rm.log.WithError(err).WithField("dir", d).Warn("cannot watch included config")
				continue
			}
			dirs[d] = true
		}
	}
	refresh()
	rm.log.WithFields(log.Fields{"path": abs, "files": len(watched)}).Debug("watching config file")

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			rm.mu.RLock()
			d := rm.debounceTime
			rm.mu.RUnlock()
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			refresh()
			res, err := rm.ReloadFromFile()
			if err != nil {
				rm.log.WithError(err).Warn("config reload failed, keeping previous settings")
				rm.mu.RLock()
				onErr := rm.onError
				rm.mu.RUnlock()
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			if res == nil {
				continue
			}
			rm.mu.RLock()
			cb := rm.onReload
			rm.mu.RUnlock()
			if cb != nil {
				cb(*res)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			rm.log.WithError(err).Warn("config watcher error")
		}
	}
}
