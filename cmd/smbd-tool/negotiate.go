// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/discovery"
)

// negotiate for the "negotiate" CLI option.
func negotiate(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	i := connect(args[0])
	defer i.Close()

	resp, n := i.Response(), i.Negotiated()

	fmt.Printf("Status:              %v\n", resp.Status)
	fmt.Printf("Version:             0x%04X [0x%04X, 0x%04X]\n", resp.NegotiatedVersion, resp.MinVersion, resp.MaxVersion)
	fmt.Printf("Credits granted:     %d\n", resp.CreditsGranted)
	fmt.Printf("Credits requested:   %d\n", resp.CreditsRequested)
	fmt.Printf("Max read write size: %d\n", n.MaxReadWriteSize)
}

// send for the "send" CLI option.
func send(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	var (
		address   = args[0]
		dataInput = args[1]

		data []byte
		err  error
	)

	if dataInput == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(dataInput)
	}
	if err != nil {
		log.WithError(err).Fatal("Reading input errored")
	}

	i := connect(address)
	defer i.Close()

	ctx, cancel := context.WithTimeout(context.Background(), negotiateTimeout)
	defer cancel()

	if err := i.Send(ctx, data); err != nil {
		log.WithError(err).Fatal("Sending errored")
	}
	log.WithField("size", len(data)).Info("Sent message")

	reply, err := i.Receive(ctx)
	if err != nil {
		log.WithError(err).Fatal("Receiving reply errored")
	}

	if _, err := os.Stdout.Write(reply); err != nil {
		log.WithError(err).Fatal("Writing reply errored")
	}
}

// discover for the "discover" CLI option.
func discover(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	seconds, err := strconv.Atoi(args[0])
	if err != nil || seconds <= 0 {
		printUsage()
	}

	found := make(chan discovery.Discovered, 16)
	manager, err := discovery.NewManager(
		fmt.Sprintf("smbd-tool-%d", os.Getpid()),
		func(d discovery.Discovered) { found <- d },
		nil, time.Second, true, true)
	if err != nil {
		log.WithError(err).Fatal("Starting discovery errored")
	}
	defer manager.Close()

	known := make(map[string]struct{})
	timeout := time.After(time.Duration(seconds) * time.Second)
	for {
		select {
		case d := <-found:
			key := fmt.Sprintf("%v %s", d.Type, d.Endpoint())
			if _, ok := known[key]; ok {
				continue
			}
			known[key] = struct{}{}

			fmt.Printf("%-6v %-30s %s\n", d.Type, d.Endpoint(), d.Name)

		case <-timeout:
			return
		}
	}
}
