// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/ffutop/servo-driver/internal/config"
	"github.com/ffutop/servo-driver/internal/simulator/model"
)

func TestHandle(t *testing.T) {
	s := New(5, model.NewRegisters(), nil)
	s.Registers().Set(model.TableHolding, 0x0010, 0x1234, 0x5678)
	s.Registers().Set(model.TableInput, 0x0100, 0x00FF)

	tests := []struct {
		name    string
		request []byte
		want    []byte
	}{
		{"ReadHolding", []byte{0x05, 0x03, 0x00, 0x10, 0x00, 0x02}, []byte{0x05, 0x03, 0x04, 0x12, 0x34, 0x56, 0x78}},
		{"ReadInput", []byte{0x05, 0x04, 0x01, 0x00, 0x00, 0x01}, []byte{0x05, 0x04, 0x02, 0x00, 0xFF}},
		{"WriteSingle", []byte{0x05, 0x06, 0x00, 0x20, 0xAB, 0xCD}, []byte{0x05, 0x06, 0x00, 0x20, 0xAB, 0xCD}},
		{"WriteMultiple", []byte{0x05, 0x10, 0x00, 0x30, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x02}, []byte{0x05, 0x10, 0x00, 0x30, 0x00, 0x02}},
		{"ZeroQuantity", []byte{0x05, 0x03, 0x00, 0x10, 0x00, 0x00}, []byte{0x05, 0x83, 0x03}},
		{"PastEnd", []byte{0x05, 0x03, 0xFF, 0xFF, 0x00, 0x02}, []byte{0x05, 0x83, 0x02}},
		{"ByteCountMismatch", []byte{0x05, 0x10, 0x00, 0x30, 0x00, 0x02, 0x02, 0x00, 0x01}, []byte{0x05, 0x90, 0x03}},
		{"IllegalFunction", []byte{0x05, 0x01, 0x00, 0x00, 0x00, 0x01}, []byte{0x05, 0x81, 0x01}},
		{"OtherAxis", []byte{0x06, 0x03, 0x00, 0x10, 0x00, 0x02}, nil},
		{"Malformed", []byte{0x05, 0x03, 0x00, 0x10}, nil},
		{"Empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Handle(tt.request)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Handle() = % X, want % X", got, tt.want)
			}
		})
	}

	if s.Registers().Holding[0x0020] != 0xABCD || s.Registers().Holding[0x0031] != 0x0002 {
		t.Error("writes not applied to the register image")
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servo.bin")
	cfg := config.SimulatorConfig{Axis: 3, Persistence: config.PersistenceConfig{Type: "mmap", Path: path}}

	s, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if s.Axis() != 3 {
		t.Errorf("Axis() = %d", s.Axis())
	}
	s.Handle([]byte{0x03, 0x06, 0x00, 0x07, 0x00, 0x2A})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if got := s.Handle([]byte{0x03, 0x03, 0x00, 0x07, 0x00, 0x01}); !bytes.Equal(got, []byte{0x03, 0x03, 0x02, 0x00, 0x2A}) {
		t.Errorf("persisted register read = % X", got)
	}
}

func TestOpenInvalid(t *testing.T) {
	for _, cfg := range []config.SimulatorConfig{
		{Axis: 0},
		{Axis: 128},
		{Axis: 1, Persistence: config.PersistenceConfig{Type: "sql"}},
		{Axis: 1, Persistence: config.PersistenceConfig{Type: "file"}},
		{Axis: 1, Persistence: config.PersistenceConfig{Type: "mmap"}},
	} {
		if _, err := Open(cfg); err == nil {
			t.Errorf("Open(%+v) expected error", cfg)
		}
	}
}
