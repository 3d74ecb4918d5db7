package tuning

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it changes and hands the result to onChange.
// Invalid files are reported to onError and the previous tuning stays in
// effect. The directory is watched so that editors that replace the file by
// rename are picked up. Watch returns once the watcher is running; it stops
// when ctx is done.
func Watch(ctx context.Context, path string, onChange func(Tuning), onError func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return err
	}
	if onError == nil {
		onError = func(error) {}
	}

	go func() {
		defer w.Close()
		const settle = 200 * time.Millisecond
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(settle)
				} else {
					timer.Reset(settle)
				}
				fire = timer.C
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				onError(err)
			case <-fire:
				fire = nil
				t, err := Load(abs)
				if err != nil {
					onError(err)
					continue
				}
				onChange(t)
			}
		}
	}()
	return nil
}
