package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Watch reports changes to the config file. The directory is watched rather
// than the file so that editors which replace the file are noticed. The
// returned channel is closed when ctx is done.
func (f *File) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create file watcher")
	}

	dir := filepath.Dir(f.filepath)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, pkgerrors.Wrapf(err, "failed to watch %s", dir)
	}

	want := filepath.Clean(f.filepath)
	changed := make(chan struct{}, 1)

	go func() {
		defer close(changed)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != want {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				logrus.WithField("op", ev.Op.String()).Debug("config file changed")
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("config watcher error")
			}
		}
	}()

	return changed, nil
}
