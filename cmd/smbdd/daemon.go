// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/control"
	"github.com/dtn7/smbdirect-go/pkg/diag"
	"github.com/dtn7/smbdirect-go/pkg/discovery"
	"github.com/dtn7/smbdirect-go/pkg/rdma/softrdma"
	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

// daemon bundles all running parts of smbdd.
type daemon struct {
	engine   *smbd.Engine
	device   *control.Device
	listener *smbd.Listener

	watcher    *control.ParamsWatcher
	diag       *diag.Server
	httpServer *http.Server
	discovery  *discovery.Manager
}

// startDaemon brings up all configured parts. Already started parts are closed again on an error.
func startDaemon(conf tomlConfig, filename string) (d *daemon, err error) {
	params, err := conf.Params.Parameters()
	if err != nil {
		return
	}

	handler, err := parseHandler(conf.Core.Handler)
	if err != nil {
		return
	}

	d = &daemon{}
	defer func() {
		if err != nil {
			_ = d.Close()
			d = nil
		}
	}()

	if d.engine, err = smbd.NewEngine(softrdma.NewProvider(), params); err != nil {
		return
	}
	d.engine.SetHandler(handler)

	d.device = control.NewDevice(d.engine, conf.Core.Bind)
	d.device.Port = conf.Core.Port
	if err = d.device.SetParams(params); err != nil {
		return
	}

	if d.listener, err = d.device.Listen(); err != nil {
		return
	}

	if conf.Core.Watch {
		if d.watcher, err = control.WatchParams(d.device, filename); err != nil {
			return
		}
	}

	var announcements []discovery.Announcement
	if port, pErr := listenPort(d.listener.Addr()); pErr == nil {
		announcements = append(announcements, discovery.Announcement{
			Type: discovery.SMBDirect,
			Port: port,
			Name: conf.Core.Name,
		})
	} else {
		log.WithError(pErr).Warn("Failed to inspect listener address, not announcing it")
	}

	if conf.Diagnostic.Listen != "" {
		var ln net.Listener
		if ln, err = net.Listen("tcp", conf.Diagnostic.Listen); err != nil {
			return
		}

		d.diag = diag.NewServer(d.device, mux.NewRouter())
		d.httpServer = &http.Server{Handler: d.diag}

		go func() {
			if srvErr := d.httpServer.Serve(ln); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
				log.WithError(srvErr).Error("Diagnostic HTTP server errored")
			}
		}()

		if port, pErr := listenPort(ln.Addr().String()); pErr == nil {
			announcements = append(announcements, discovery.Announcement{
				Type: discovery.Diagnostic,
				Port: port,
				Name: conf.Core.Name,
			})
		}

		log.WithField("address", ln.Addr()).Info("Serving diagnostics")
	} else {
		go d.logEvents()
	}

	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		d.discovery, err = discovery.NewManager(
			conf.Core.Name, logDiscovered, announcements,
			time.Duration(conf.Discovery.Interval)*time.Second,
			conf.Discovery.IPv4, conf.Discovery.IPv6)
		if err != nil {
			return
		}
	}

	return
}

// logEvents consumes the Engine's Events if no diagnostic server does.
func (d *daemon) logEvents() {
	for ev := range d.engine.Events() {
		log.WithField("event", ev).Info("Engine event")
	}
}

func logDiscovered(disco discovery.Discovered) {
	log.WithFields(log.Fields{
		"peer":    disco.Endpoint(),
		"name":    disco.Name,
		"service": disco.Type,
	}).Info("Discovered SMB Direct node")
}

func listenPort(addr string) (uint, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	return uint(port), err
}

// Close all started parts in reverse order.
func (d *daemon) Close() error {
	var err error

	if d.discovery != nil {
		d.discovery.Close()
	}
	if d.httpServer != nil {
		if srvErr := d.httpServer.Close(); srvErr != nil {
			err = multierror.Append(err, srvErr)
		}
	}
	if d.diag != nil {
		d.diag.Close()
	}
	if d.watcher != nil {
		if wErr := d.watcher.Close(); wErr != nil {
			err = multierror.Append(err, wErr)
		}
	}
	if d.engine != nil {
		if eErr := d.engine.Close(); eErr != nil {
			err = multierror.Append(err, eErr)
		}
	}

	return err
}
