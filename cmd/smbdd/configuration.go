// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"

	"github.com/dtn7/smbdirect-go/pkg/control"
	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core       coreConf
	Logging    logConf
	Params     control.ParamsConf
	Diagnostic diagnosticConf
	Discovery  discoveryConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Bind      string
	Port      int
	Name      string
	Handler   string
	Watch     bool
	Profiling bool
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// diagnosticConf describes the Diagnostic-configuration block.
type diagnosticConf struct {
	Listen string
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4     bool
	IPv6     bool
	Interval uint
}

// parseConfig reads a TOML configuration. Missing values are set to their defaults.
func parseConfig(filename string) (conf tomlConfig, err error) {
	conf = tomlConfig{
		Core: coreConf{
			Bind:    "0.0.0.0",
			Port:    smbd.DefaultPort,
			Handler: "echo",
		},
		Params: control.DefaultParamsConf(),
	}

	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	if conf.Core.Name == "" {
		err = fmt.Errorf("core.name is empty")
		return
	}
	if conf.Core.Port < 0 || conf.Core.Port > 0xFFFF {
		err = fmt.Errorf("core.port %d is out of range", conf.Core.Port)
		return
	}
	if _, hErr := parseHandler(conf.Core.Handler); hErr != nil {
		err = hErr
		return
	}

	if conf.Discovery.Interval == 0 {
		conf.Discovery.Interval = 10
	}

	return
}

// setupLogging configures logrus based on the Logging-configuration block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseHandler maps the core.handler name to a Handler for received messages.
func parseHandler(name string) (smbd.Handler, error) {
	switch name {
	case "echo":
		return smbd.EchoHandler, nil

	case "discard":
		return smbd.HandlerFunc(func(session uint64, message []byte) []byte {
			log.WithFields(log.Fields{
				"session": session,
				"size":    len(message),
			}).Debug("Discarding message")
			return nil
		}), nil

	default:
		return nil, fmt.Errorf("unknown core.handler \"%s\"", name)
	}
}
