package scoring

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
)

// WatchMarketTable reloads the table at path into store whenever the file
// changes, until ctx is done. An invalid table is logged and the previous
// one stays active. onReload, if set, is called after every attempt.
//
// The parent directory is watched so that editors replacing the file by
// rename are noticed.
func WatchMarketTable(ctx context.Context, path string, store *MarketTableStore, logger logging.Logger, onReload func(error)) error {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t, err := LoadMarketTable(abs)
				if err != nil {
					logger.Warn("market table reload rejected", logging.String("path", abs), logging.Err(err))
				} else {
					store.Replace(t)
					logger.Info("market table reloaded", logging.String("path", abs), logging.Int("domains", len(t.Domains())))
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("market table watcher error", logging.Err(err))
			}
		}
	}()
	return nil
}
