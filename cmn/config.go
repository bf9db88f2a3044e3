// Package cmn provides common constants, types, and utilities for raidio
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"time"

	"github.com/NVIDIA/raidio/cmn/jsp"
	"github.com/pkg/errors"
)

// Config is injected into the engine at construction; there is no global
// instance.
type (
	Config struct {
		Raid   RaidConf   `json:"raid"`
		Memsys MemsysConf `json:"memsys"`
		Trace  TraceConf  `json:"trace"`
		Log    LogConf    `json:"log"`
	}
	RaidConf struct {
		// number of scheduler workers running siots state machines
		Workers int `json:"workers"`
		// full (checksum + lba stamp) validation on every read
		CheckChecksum bool `json:"check_checksum"`
		// bounds on corrective loops
		RetryLimit     int `json:"retry_limit"`
		MaxRestarts    int `json:"max_restarts"`
		MaxEscalations int `json:"max_escalations"`
		// unblock generation of the next siots right after dispatch
		PipelineGen bool `json:"pipeline_gen"`
		// max wait for a predecessor holding the stripe gate
		GateTimeout Duration `json:"gate_timeout"`
	}
	MemsysConf struct {
		// sector buffer budget; requests beyond what's free are deferred
		MaxSectors int `json:"max_sectors"`
		// free buffers kept cached by the slab
		SlabDepth int `json:"slab_depth"`
	}
	TraceConf struct {
		Enabled     bool    `json:"enabled"`
		Endpoint    string  `json:"endpoint"`
		Insecure    bool    `json:"insecure"`
		SampleRatio float64 `json:"sample_ratio"`
		States      bool    `json:"states"` // log every state transition
		Frus        bool    `json:"frus"`   // log every drive read
	}
	LogConf struct {
		Dir       string `json:"dir"`
		ToStderr  bool   `json:"to_stderr"`
		Verbosity int    `json:"verbosity"`
	}
)

// Duration marshals as a Go duration string ("10s")
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

const (
	DefaultWorkers        = 4
	DefaultRetryLimit     = 3
	DefaultMaxRestarts    = 8
	DefaultMaxEscalations = 4
	DefaultMaxSectors     = 64 * 1024
	DefaultSlabDepth      = 128
	DefaultGateTimeout    = Duration(30 * time.Second)
)

func DefaultConfig() *Config {
	return &Config{
		Raid: RaidConf{
			Workers:        DefaultWorkers,
			RetryLimit:     DefaultRetryLimit,
			MaxRestarts:    DefaultMaxRestarts,
			MaxEscalations: DefaultMaxEscalations,
			PipelineGen:    true,
			GateTimeout:    DefaultGateTimeout,
		},
		Memsys: MemsysConf{MaxSectors: DefaultMaxSectors, SlabDepth: DefaultSlabDepth},
		Trace:  TraceConf{SampleRatio: 1},
		Log:    LogConf{ToStderr: true},
	}
}

func (c *Config) Validate() error {
	switch {
	case c.Raid.Workers <= 0:
		return errors.Errorf("invalid raid.workers %d", c.Raid.Workers)
	case c.Raid.RetryLimit < 0:
		return errors.Errorf("invalid raid.retry_limit %d", c.Raid.RetryLimit)
	case c.Raid.MaxRestarts < 0:
		return errors.Errorf("invalid raid.max_restarts %d", c.Raid.MaxRestarts)
	case c.Raid.MaxEscalations <= 0:
		return errors.Errorf("invalid raid.max_escalations %d", c.Raid.MaxEscalations)
	case c.Raid.GateTimeout <= 0:
		return errors.Errorf("invalid raid.gate_timeout %v", c.Raid.GateTimeout.D())
	case c.Memsys.MaxSectors <= 0:
		return errors.Errorf("invalid memsys.max_sectors %d", c.Memsys.MaxSectors)
	case c.Trace.SampleRatio < 0 || c.Trace.SampleRatio > 1:
		return errors.Errorf("invalid trace.sample_ratio %f", c.Trace.SampleRatio)
	case c.Trace.Enabled && c.Trace.Endpoint == "":
		return errors.New("trace.endpoint required when tracing is enabled")
	}
	return nil
}

// LoadConfig reads a plain JSON config on top of the defaults
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if err := jsp.Load(path, c, jsp.Plain()); err != nil {
		return nil, errors.Wrapf(err, "failed to load config %q", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %q", path)
	}
	return c, nil
}

func SaveConfig(path string, c *Config) error {
	return jsp.Save(path, c, jsp.Plain())
}
