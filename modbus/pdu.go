// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

// ResponseLength returns the expected length of the answer payload
// (address byte included, checksum excluded) for a request payload of the
// form [Address, Function, Data...].
func ResponseLength(request []byte) (int, error) {
	if len(request) < 2 {
		return 0, fmt.Errorf("modbus: request too short: %d bytes", len(request))
	}

	switch request[1] {
	case FuncCodeReadCoils,
		FuncCodeReadDiscreteInputs:
		if len(request) < 6 {
			return 0, fmt.Errorf("modbus: need 6 bytes to determine length for 0x%02X, got %d", request[1], len(request))
		}
		count := int(binary.BigEndian.Uint16(request[4:]))
		// [Address, Func, ByteCount, Status(N)]
		return 3 + (count+7)/8, nil
	case FuncCodeReadHoldingRegisters,
		FuncCodeReadInputRegisters:
		if len(request) < 6 {
			return 0, fmt.Errorf("modbus: need 6 bytes to determine length for 0x%02X, got %d", request[1], len(request))
		}
		count := int(binary.BigEndian.Uint16(request[4:]))
		// [Address, Func, ByteCount, Registers(2N)]
		return 3 + count*2, nil
	case FuncCodeWriteSingleCoil,
		FuncCodeWriteSingleRegister,
		FuncCodeWriteMultipleCoils,
		FuncCodeWriteMultipleRegisters:
		// [Address, Func, Addr(2), Value/Quantity(2)]
		return 6, nil
	case FuncCodeMaskWriteRegister:
		return 8, nil
	default:
		return 0, fmt.Errorf("modbus: unsupported function code: 0x%02X", request[1])
	}
}

// RequestLength returns the expected length of a request payload
// (address byte included, checksum excluded) from its header.
// Write multiple requests need the byte count at header[6].
func RequestLength(header []byte) (int, error) {
	if len(header) < 2 {
		return 0, fmt.Errorf("modbus: request too short: %d bytes", len(header))
	}

	switch header[1] {
	case FuncCodeReadCoils,
		FuncCodeReadDiscreteInputs,
		FuncCodeReadHoldingRegisters,
		FuncCodeReadInputRegisters,
		FuncCodeWriteSingleCoil,
		FuncCodeWriteSingleRegister:
		// [Address, Func, Addr(2), Value(2)]
		return 6, nil
	case FuncCodeWriteMultipleCoils,
		FuncCodeWriteMultipleRegisters:
		// [Address, Func, Addr(2), Quantity(2), ByteCount, Data(N)]
		if len(header) < 7 {
			return 0, fmt.Errorf("modbus: need 7 bytes to determine length for 0x%02X, got %d", header[1], len(header))
		}
		return 7 + int(header[6]), nil
	case FuncCodeMaskWriteRegister:
		return 8, nil
	default:
		return 0, fmt.Errorf("modbus: unsupported function code: 0x%02X", header[1])
	}
}
