// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

// pinger sends ping messages and awaits their echo.
type pinger struct {
	initiator *smbd.Initiator
	closeChan chan os.Signal
	seq       uint
}

// pingOnce sends one ping message and waits for its reply.
func (p *pinger) pingOnce() (time.Duration, error) {
	p.seq++
	msg := []byte(fmt.Sprintf("ping %d", p.seq))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := p.initiator.Send(ctx, msg); err != nil {
		return 0, err
	}

	reply, err := p.initiator.Receive(ctx)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(reply, msg) {
		return 0, fmt.Errorf("reply %q does not match %q", reply, msg)
	}

	return time.Since(start), nil
}

// handle a pinger's task.
func (p *pinger) handle() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeChan:
			return

		case <-ticker.C:
			if rtt, err := p.pingOnce(); err != nil {
				log.WithError(err).WithField("seq", p.seq).Error("Ping failed")
				return
			} else {
				log.WithFields(log.Fields{
					"seq":     p.seq,
					"rtt":     rtt,
					"credits": p.initiator.SendCredits(),
				}).Info("Received ping reply")
			}
		}
	}
}

// ping for the "ping" CLI option.
func ping(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	p := &pinger{
		initiator: connect(args[0]),
		closeChan: make(chan os.Signal, 1),
	}
	defer p.initiator.Close()

	signal.Notify(p.closeChan, os.Interrupt)

	p.handle()
}
