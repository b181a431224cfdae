// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the vocabulary shared by the serial codecs, the
// protocol dispatcher and the register client.
package modbus

import (
	"fmt"
	"strings"
	"time"
)

const (
	// BusTimeout is the default time allowed for a single bus write or read.
	BusTimeout = 100 * time.Millisecond
	// BufferSize is the default capacity of the frame staging buffer.
	BufferSize = 256
)

// Function Codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10
	FuncCodeMaskWriteRegister      = 0x16
)

// Exception Codes
const (
	ExceptionCodeIllegalFunction     = 0x01
	ExceptionCodeIllegalDataAddress  = 0x02
	ExceptionCodeIllegalDataValue    = 0x03
	ExceptionCodeServerDeviceFailure = 0x04
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// Mode selects the serial wire encoding.
type Mode int

const (
	ModeASCII Mode = iota
	ModeRTU
)

func (m Mode) String() string {
	switch m {
	case ModeASCII:
		return "ascii"
	case ModeRTU:
		return "rtu"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a configuration string ("ascii" or "rtu") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascii":
		return ModeASCII, nil
	case "rtu":
		return ModeRTU, nil
	default:
		return 0, fmt.Errorf("modbus: unknown mode %q", s)
	}
}
