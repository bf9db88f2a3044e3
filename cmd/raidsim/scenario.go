// Package main - raidsim formats a simulated RAID group, injects faults, and
// runs host reads through the raid engine.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"os"

	"github.com/NVIDIA/raidio/dbdriver"
	"github.com/NVIDIA/raidio/drive"
	"github.com/NVIDIA/raidio/raid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const memStore = "mem"

type (
	Scenario struct {
		Group       GroupSpec   `yaml:"group"`
		Store       string      `yaml:"store"` // "mem" or a buntdb file
		Dead        []int       `yaml:"dead"`
		Faults      []FaultSpec `yaml:"faults"`
		Corrupt     []BlockSpec `yaml:"corrupt"`
		Misdirect   []BlockSpec `yaml:"misdirect"`
		Reads       []ReadSpec  `yaml:"reads"`
		Concurrency int         `yaml:"concurrency"`
	}
	GroupSpec struct {
		ID          string `yaml:"id"`
		Width       int    `yaml:"width"`
		Parity      int    `yaml:"parity"`
		ElementSize int    `yaml:"element_size"`
		Stripes     uint64 `yaml:"stripes"`
	}
	FaultSpec struct {
		Kind  string  `yaml:"kind"`
		PBA   *uint64 `yaml:"pba"` // nil: every read of the position
		Pos   int     `yaml:"pos"`
		Count int     `yaml:"count"`
	}
	// BlockSpec addresses a logical block; the sector is looked up on its position
	BlockSpec struct {
		LBA uint64 `yaml:"lba"`
	}
	ReadSpec struct {
		Alg         string `yaml:"alg"`
		Prio        string `yaml:"prio"`
		Expect      string `yaml:"expect"` // terminal status, "success" by default
		raid.Region `yaml:",inline"`
		Repeat      int `yaml:"repeat"`
	}
)

func loadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sc := &Scenario{Store: memStore, Concurrency: 4}
	if err := yaml.Unmarshal(b, sc); err != nil {
		return nil, errors.Wrapf(err, "scenario %q", path)
	}
	if len(sc.Reads) == 0 {
		return nil, errors.Errorf("scenario %q: no reads", path)
	}
	if sc.Group.ID == "" {
		sc.Group.ID = "rg0"
	}
	sc.Concurrency = max(sc.Concurrency, 1)
	return sc, nil
}

func (sc *Scenario) newGroup() (*raid.Group, error) {
	g := &sc.Group
	return raid.NewGroup(g.ID, g.Width, g.Parity, g.ElementSize, g.Stripes)
}

func (sc *Scenario) openStore() (dbdriver.Driver, error) {
	if sc.Store == "" || sc.Store == memStore {
		return dbdriver.NewDBMock(), nil
	}
	return dbdriver.NewBuntDB(sc.Store)
}

// inject applies dead members, faults, and damaged sectors
func (sc *Scenario) inject(g *raid.Group, arr *drive.Array) error {
	for _, pos := range sc.Dead {
		if pos < 0 || pos >= g.Width {
			return errors.Errorf("invalid dead position %d", pos)
		}
		g.SetDead(pos)
		arr.Kill(pos)
	}
	for _, f := range sc.Faults {
		kind, err := drive.ParseFaultKind(f.Kind)
		if err != nil {
			return err
		}
		if f.Pos < 0 || f.Pos >= g.Width {
			return errors.Errorf("invalid fault position %d", f.Pos)
		}
		fault := &drive.Fault{Pos: f.Pos, PBA: drive.AnyPBA, Count: f.Count, Kind: kind}
		if f.PBA != nil {
			fault.PBA = *f.PBA
		}
		arr.Inject(fault)
	}
	for _, b := range sc.Corrupt {
		pos, pba, err := locate(g, b.LBA)
		if err != nil {
			return err
		}
		if err := arr.Corrupt(pos, pba); err != nil {
			return err
		}
	}
	for _, b := range sc.Misdirect {
		pos, pba, err := locate(g, b.LBA)
		if err != nil {
			return err
		}
		from := pba + 1
		if from%uint64(g.ElementSize) == 0 {
			from = pba - 1
		}
		if err := arr.Misdirect(pos, pba, from); err != nil {
			return err
		}
	}
	return nil
}

func locate(g *raid.Group, lba uint64) (pos int, pba uint64, err error) {
	if lba >= g.Capacity() {
		return 0, 0, errors.Errorf("lba %d outside of %s", lba, g)
	}
	stripe, idx, row := g.Locate(lba)
	return g.DataPos(stripe, idx), g.PBA(stripe, row), nil
}
