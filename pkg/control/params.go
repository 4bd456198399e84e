// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package control

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

// ParamsConf describes the [params] configuration block. Durations are given in seconds, the security blob as a hex
// string.
type ParamsConf struct {
	MinVersion        uint16 `toml:"min-version"`
	MaxVersion        uint16 `toml:"max-version"`
	SendCreditTarget  uint16 `toml:"send-credit-target"`
	ReceiveCreditMax  uint16 `toml:"receive-credit-max"`
	MaxSendSize       uint32 `toml:"max-send-size"`
	MaxReceiveSize    uint32 `toml:"max-receive-size"`
	MaxFragmentedSize uint32 `toml:"max-fragmented-size"`
	MaxReadWriteSize  uint32 `toml:"max-read-write-size"`
	KeepaliveInterval uint   `toml:"keepalive-interval"`
	NegotiateTimeout  uint   `toml:"negotiate-timeout"`
	SecurityBlob      string `toml:"security-blob"`
}

// DefaultParamsConf mirrors smbd.DefaultParameters. Fields missing in a file keep these values.
func DefaultParamsConf() ParamsConf {
	p := smbd.DefaultParameters()

	return ParamsConf{
		MinVersion:        p.MinVersion,
		MaxVersion:        p.MaxVersion,
		SendCreditTarget:  p.SendCreditTarget,
		ReceiveCreditMax:  p.ReceiveCreditMax,
		MaxSendSize:       p.MaxSendSize,
		MaxReceiveSize:    p.MaxReceiveSize,
		MaxFragmentedSize: p.MaxFragmentedSize,
		MaxReadWriteSize:  p.MaxReadWriteSize,
		KeepaliveInterval: uint(p.KeepaliveInterval / time.Second),
		NegotiateTimeout:  uint(p.NegotiateTimeout / time.Second),
	}
}

// Parameters converts and validates this block.
func (pc ParamsConf) Parameters() (params smbd.Parameters, err error) {
	params = smbd.Parameters{
		MinVersion:        pc.MinVersion,
		MaxVersion:        pc.MaxVersion,
		SendCreditTarget:  pc.SendCreditTarget,
		ReceiveCreditMax:  pc.ReceiveCreditMax,
		MaxSendSize:       pc.MaxSendSize,
		MaxReceiveSize:    pc.MaxReceiveSize,
		MaxFragmentedSize: pc.MaxFragmentedSize,
		MaxReadWriteSize:  pc.MaxReadWriteSize,
		KeepaliveInterval: time.Duration(pc.KeepaliveInterval) * time.Second,
		NegotiateTimeout:  time.Duration(pc.NegotiateTimeout) * time.Second,
	}

	if pc.SecurityBlob != "" {
		if params.SecurityBlob, err = hex.DecodeString(pc.SecurityBlob); err != nil {
			err = fmt.Errorf("security-blob: %w", err)
			return
		}
	}

	err = params.Validate()
	return
}

// LoadParams reads the [params] block of a TOML file.
func LoadParams(filename string) (smbd.Parameters, error) {
	conf := struct {
		Params ParamsConf
	}{
		Params: DefaultParamsConf(),
	}

	if _, err := toml.DecodeFile(filename, &conf); err != nil {
		return smbd.Parameters{}, err
	}

	return conf.Params.Parameters()
}
