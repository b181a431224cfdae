// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package app implements the servoctl command line.
package app

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ffutop/servo-driver/internal/config"
	"github.com/ffutop/servo-driver/modbus"
	"github.com/ffutop/servo-driver/servo"
)

const component = "servoctl"

// Exit statuses.
const (
	ExitOK = iota
	ExitUsage
	ExitNoBufferSpace
	ExitTimeout
	ExitCorrupted
	ExitIOError
	ExitRejected
)

// options are the global flags. Flags that are set override the
// configuration file.
type options struct {
	configFile string
	mode       string
	busType    string
	simulate   bool
	logLevel   string
	retries    int
	axis       uint8
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configFile, "config", "c", o.configFile, "Path to config file. Omit to search /etc/servoctl, $HOME/.servoctl and the working directory.")
	fs.StringVar(&o.mode, "mode", o.mode, "Modbus wire encoding: ascii or rtu.")
	fs.StringVar(&o.busType, "bus", o.busType, "Bus type: serial, tunnel or simulator.")
	fs.BoolVar(&o.simulate, "simulate", o.simulate, "Talk to a simulated servo instead of the configured bus.")
	fs.StringVar(&o.logLevel, "log-level", o.logLevel, "Log level: debug, info, warn or error.")
	fs.IntVar(&o.retries, "retries", o.retries, "Extra attempts after a timeout or corrupted answer.")
	fs.Uint8VarP(&o.axis, "axis", "a", 1, "Servo communication address (1-127).")
}

// load reads the configuration and applies the flags that were set.
func (o *options) load(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configFile)
	if err != nil {
		return nil, err
	}
	if fs.Changed("mode") {
		cfg.Bus.Mode = o.mode
		if _, err := cfg.Bus.ModbusMode(); err != nil {
			return nil, err
		}
	}
	if fs.Changed("bus") {
		cfg.Bus.Type = o.busType
	}
	if o.simulate {
		cfg.Bus.Type = "simulator"
		cfg.Bus.Simulator.Axis = int(o.axis)
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("retries") {
		cfg.Servo.Retries = o.retries
	}
	return cfg, nil
}

// NewServoctlCmd creates the root command.
func NewServoctlCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           component,
		Short:         "Read and write EPS-B1 servo registers over Modbus ASCII or RTU",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newReadCmd(o),
		newWriteCmd(o),
		newWriteOneCmd(o),
	)
	return cmd
}

func newReadCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read ADDRESS [COUNT]",
		Short: "Read COUNT (default 1) holding registers starting at ADDRESS",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseWord("address", args[0])
			if err != nil {
				return err
			}
			count := 1
			if len(args) == 2 {
				n, err := strconv.ParseUint(args[1], 0, 8)
				if err != nil {
					return usageError{fmt.Errorf("invalid count %q: %w", args[1], err)}
				}
				count = int(n)
			}

			return o.run(cmd, func(d *servo.Driver) error {
				words, err := d.ReadWords(cmd.Context(), o.axis, address, count)
				if err != nil {
					return err
				}
				printWords(cmd.OutOrStdout(), address, words)
				return nil
			})
		},
	}
}

func newWriteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "write ADDRESS WORD...",
		Short: "Write consecutive holding registers starting at ADDRESS",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseWord("address", args[0])
			if err != nil {
				return err
			}
			words := make([]uint16, 0, len(args)-1)
			for _, arg := range args[1:] {
				w, err := parseWord("word", arg)
				if err != nil {
					return err
				}
				words = append(words, w)
			}

			return o.run(cmd, func(d *servo.Driver) error {
				return d.WriteWords(cmd.Context(), o.axis, address, words)
			})
		},
	}
}

func newWriteOneCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "write-one ADDRESS WORD",
		Short: "Write a single holding register",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseWord("address", args[0])
			if err != nil {
				return err
			}
			word, err := parseWord("word", args[1])
			if err != nil {
				return err
			}

			return o.run(cmd, func(d *servo.Driver) error {
				return d.WriteWord(cmd.Context(), o.axis, address, word)
			})
		},
	}
}

// run loads the configuration, opens the bus and calls fn with the driver.
func (o *options) run(cmd *cobra.Command, fn func(d *servo.Driver) error) error {
	cfg, err := o.load(cmd.Flags())
	if err != nil {
		return usageError{err}
	}
	setupLogger(cfg.Log, cmd.ErrOrStderr())

	d, closer, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	return fn(d)
}

func parseWord(name, s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, usageError{fmt.Errorf("invalid %s %q: %w", name, s, err)}
	}
	return uint16(v), nil
}

func printWords(w io.Writer, address uint16, words []uint16) {
	for i, word := range words {
		fmt.Fprintf(w, "0x%04X: 0x%04X (%d)\n", int(address)+i, word, word)
	}
}

type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &usage):
		return ExitUsage
	case errors.Is(err, servo.ErrInvalidAxis),
		errors.Is(err, servo.ErrTooManyWords),
		errors.Is(err, servo.ErrUnexpectedAnswer):
		return ExitRejected
	}

	switch modbus.ResultOf(err) {
	case modbus.ResultNoBufferSpace:
		return ExitNoBufferSpace
	case modbus.ResultTimeout:
		return ExitTimeout
	case modbus.ResultCorrupted:
		return ExitCorrupted
	}
	if errors.Is(err, modbus.ErrIO) {
		return ExitIOError
	}
	// argument and configuration errors
	return ExitUsage
}
