// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// smbd-tool is the initiator side of SMB Direct for manual testing.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma/softrdma"
	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

// negotiateTimeout bounds dialing and negotiating.
const negotiateTimeout = 5 * time.Second

// printUsage of smbd-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s negotiate|send|ping|discover:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s negotiate address\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Connects to the address, e.g., localhost:5445, negotiates and prints the\n")
	_, _ = fmt.Fprintf(os.Stderr, "  acceptor's response.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s send address -|filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends the stdin (-) or the given file as one message and writes the reply\n")
	_, _ = fmt.Fprintf(os.Stderr, "  to stdout.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s ping address\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends a message each second and reports the time until its reply.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s discover seconds\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Lists the SMB Direct nodes announcing themselves within the given seconds.\n\n")

	os.Exit(1)
}

// connect to an acceptor and negotiate.
func connect(address string) *smbd.Initiator {
	provider := softrdma.NewProvider()

	qp, err := provider.Dial(address, smbd.MaxCQDepth)
	if err != nil {
		log.WithError(err).WithField("address", address).Fatal("Connecting errored")
	}

	i, err := smbd.NewInitiator(qp, smbd.DefaultParameters())
	if err != nil {
		log.WithError(err).Fatal("Creating initiator errored")
	}

	ctx, cancel := context.WithTimeout(context.Background(), negotiateTimeout)
	defer cancel()

	if resp, err := i.Negotiate(ctx); err != nil {
		_ = i.Close()
		log.WithError(err).WithField("response", resp).Fatal("Negotiation errored")
	}

	return i
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "negotiate":
		negotiate(os.Args[2:])

	case "send":
		send(os.Args[2:])

	case "ping":
		ping(os.Args[2:])

	case "discover":
		discover(os.Args[2:])

	default:
		printUsage()
	}
}
