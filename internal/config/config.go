// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ffutop/servo-driver/modbus"
)

// Config defines the global configuration structure
type Config struct {
	Bus   BusConfig   `mapstructure:"bus"`
	Servo ServoConfig `mapstructure:"servo"`
	Log   LogConfig   `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// BusConfig defines the serial bus the servos are attached to
type BusConfig struct {
	Mode       string        `mapstructure:"mode"` // "ascii", "rtu"
	Type       string        `mapstructure:"type"` // "serial", "tunnel", "simulator"
	Timeout    time.Duration `mapstructure:"timeout"`
	BufferSize int           `mapstructure:"buffer_size"`

	Serial    SerialConfig    `mapstructure:"serial"`    // Used if Type is "serial"
	Tunnel    TunnelConfig    `mapstructure:"tunnel"`    // Used if Type is "tunnel"
	Simulator SimulatorConfig `mapstructure:"simulator"` // Used if Type is "simulator"
}

// ServoConfig defines register client settings
type ServoConfig struct {
	Retries int `mapstructure:"retries"` // Extra attempts after a timeout or corrupted answer
}

// SimulatorConfig defines the simulated servo behind the loopback transport
type SimulatorConfig struct {
	Axis        int               `mapstructure:"axis"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// TunnelConfig defines a serial device server reached over TCP
type TunnelConfig struct {
	Address  string `mapstructure:"address"`   // e.g. "192.168.1.100:4001"
	BaudRate int    `mapstructure:"baud_rate"` // Baud rate of the remote line, for inter-frame delays
}

// SerialConfig defines UART settings
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    int           `mapstructure:"stop_bits"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"` // Close the port after inactivity

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// ModbusMode returns the parsed wire encoding.
func (b BusConfig) ModbusMode() (modbus.Mode, error) {
	return modbus.ParseMode(b.Mode)
}

// LoadConfig loads configuration from file. With an empty configFile the
// standard locations are searched and defaults are used if none exists.
// Every key can be overridden by SERVOCTL_<SECTION>_<KEY> environment
// variables, e.g. SERVOCTL_BUS_SERIAL_DEVICE.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/servoctl/")
		v.AddConfigPath("$HOME/.servoctl")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("servoctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	if err := config.validate(); err != nil {
		return nil, err
	}
	fixupSerial(&config.Bus.Serial)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("bus.mode", "rtu")
	v.SetDefault("bus.type", "serial")
	v.SetDefault("bus.timeout", modbus.BusTimeout)
	v.SetDefault("bus.buffer_size", modbus.BufferSize)

	v.SetDefault("bus.serial.device", "/dev/ttyUSB0")
	v.SetDefault("bus.serial.baud_rate", 19200)
	v.SetDefault("bus.serial.data_bits", 8)
	v.SetDefault("bus.serial.parity", "E")
	v.SetDefault("bus.serial.stop_bits", 1)
	v.SetDefault("bus.serial.idle_timeout", 60*time.Second)
	v.SetDefault("bus.serial.rs485", false)

	v.SetDefault("bus.tunnel.address", "")
	v.SetDefault("bus.tunnel.baud_rate", 19200)

	v.SetDefault("bus.simulator.axis", 1)
	v.SetDefault("bus.simulator.persistence.type", "memory")
	v.SetDefault("bus.simulator.persistence.path", "")

	v.SetDefault("servo.retries", 0)
}

func (c *Config) validate() error {
	if _, err := c.Bus.ModbusMode(); err != nil {
		return fmt.Errorf("invalid bus.mode: %w", err)
	}
	switch c.Bus.Type {
	case "serial", "simulator":
	case "tunnel":
		if c.Bus.Tunnel.Address == "" {
			return errors.New("bus.tunnel.address is required for a tunnel bus")
		}
	default:
		return fmt.Errorf("unknown bus.type %q", c.Bus.Type)
	}
	if c.Bus.Timeout <= 0 {
		return fmt.Errorf("invalid bus.timeout %v", c.Bus.Timeout)
	}
	if c.Bus.BufferSize <= 0 {
		return fmt.Errorf("invalid bus.buffer_size %d", c.Bus.BufferSize)
	}
	if c.Servo.Retries < 0 {
		return fmt.Errorf("invalid servo.retries %d", c.Servo.Retries)
	}
	if a := c.Bus.Simulator.Axis; a < 1 || a > 127 {
		return fmt.Errorf("invalid bus.simulator.axis %d", a)
	}
	switch p := c.Bus.Simulator.Persistence; p.Type {
	case "memory", "":
	case "file", "mmap":
		if p.Path == "" {
			return fmt.Errorf("bus.simulator.persistence.path is required for %s persistence", p.Type)
		}
	default:
		return fmt.Errorf("unknown bus.simulator.persistence.type %q", p.Type)
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "E"
	}
	if s.BaudRate == 0 {
		s.BaudRate = 19200
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
}
