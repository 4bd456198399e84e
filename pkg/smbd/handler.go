// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

// Handler consumes upper layer messages received on an established Connection.
//
// HandleMessage is called on the Connection's worker, one message at a time. The message belongs to the Handler.
// A non-empty reply is sent back as soon as credits allow. A Handler must not call Send on the same Connection.
type Handler interface {
	HandleMessage(session uint64, message []byte) (reply []byte)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(session uint64, message []byte) (reply []byte)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(session uint64, message []byte) []byte {
	return f(session, message)
}

// EchoHandler replies each message unaltered.
var EchoHandler = HandlerFunc(func(_ uint64, message []byte) []byte {
	return message
})
