// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package control

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ParamsWatcher reloads a Device's parameter block whenever its file changes.
type ParamsWatcher struct {
	device   *Device
	filename string
	watcher  *fsnotify.Watcher

	stopSyn chan struct{}
	stopAck chan struct{}
}

// WatchParams starts watching a TOML file's [params] block. The file is not loaded initially.
//
// The file's directory is watched, as editors tend to replace files instead of writing them.
func WatchParams(device *Device, filename string) (*ParamsWatcher, error) {
	filename, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(filename)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	pw := &ParamsWatcher{
		device:   device,
		filename: filename,
		watcher:  watcher,

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
	go pw.handle()

	log.WithField("file", filename).Info("Watching parameter file")
	return pw, nil
}

func (pw *ParamsWatcher) handle() {
	defer close(pw.stopAck)

	for {
		select {
		case <-pw.stopSyn:
			return

		case e, ok := <-pw.watcher.Events:
			if !ok {
				log.WithField("watcher", pw).Error("fsnotify's Event channel was closed")
				return
			}

			if filepath.Clean(e.Name) != pw.filename {
				continue
			}

			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			pw.reload()

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				log.WithField("watcher", pw).Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).WithField("watcher", pw).Warn("fsnotify errored")
		}
	}
}

func (pw *ParamsWatcher) reload() {
	logger := log.WithField("file", pw.filename)

	params, err := LoadParams(pw.filename)
	if err != nil {
		logger.WithError(err).Warn("Reloading parameters failed, keeping the prior ones")
		return
	}

	if err := pw.device.SetParams(params); err != nil {
		logger.WithError(err).Warn("Reloaded parameters were rejected")
		return
	}

	logger.WithField("params", params).Info("Reloaded parameters")
}

// Close stops watching.
func (pw *ParamsWatcher) Close() error {
	close(pw.stopSyn)
	<-pw.stopAck

	return pw.watcher.Close()
}

func (pw *ParamsWatcher) String() string {
	return fmt.Sprintf("params-watcher(%s)", pw.filename)
}
