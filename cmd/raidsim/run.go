// Package main - raidsim formats a simulated RAID group, injects faults, and
// runs host reads through the raid engine.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NVIDIA/raidio/cmn"
	"github.com/NVIDIA/raidio/cmn/cos"
	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/drive"
	"github.com/NVIDIA/raidio/parity"
	"github.com/NVIDIA/raidio/raid"
	"github.com/NVIDIA/raidio/stats"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type (
	readJob struct {
		spec   *ReadSpec
		alg    raid.Algorithm
		prio   raid.Priority
		expect raid.Status
	}
	// Report summarizes a scenario run
	Report struct {
		Statuses map[string]int
		Stats    stats.Snap
		Bytes    int64
		Elapsed  time.Duration
		Failed   int
	}
)

func (r *Report) String() string {
	return fmt.Sprintf("%d read%s, %s, %v, statuses %v, %d unexpected",
		r.total(), cos.Plural(r.total()), cos.ToSizeIEC(r.Bytes, 1), r.Elapsed, r.Statuses, r.Failed)
}

func (r *Report) total() (n int) {
	for _, cnt := range r.Statuses {
		n += cnt
	}
	return n
}

func (sc *Scenario) jobs() ([]readJob, error) {
	var out []readJob
	for i := range sc.Reads {
		spec := &sc.Reads[i]
		alg, err := raid.ParseAlgorithm(spec.Alg)
		if err != nil {
			return nil, err
		}
		prio, err := raid.ParsePriority(spec.Prio)
		if err != nil {
			return nil, err
		}
		expect := raid.StatusSuccess
		if spec.Expect != "" {
			if expect, err = raid.ParseStatus(spec.Expect); err != nil {
				return nil, err
			}
		}
		for range max(spec.Repeat, 1) {
			out = append(out, readJob{spec: spec, alg: alg, prio: prio, expect: expect})
		}
	}
	return out, nil
}

// run formats the group (unless the store already holds it), applies the
// scenario's damage, and runs its reads
func run(ctx context.Context, sc *Scenario, cfg *cmn.Config, tracker *stats.Tracker, tp trace.TracerProvider) (*Report, error) {
	jobs, err := sc.jobs()
	if err != nil {
		return nil, err
	}
	g, err := sc.newGroup()
	if err != nil {
		return nil, err
	}
	codec, err := parity.NewCodec(g.DataDisks(), g.Parity)
	if err != nil {
		return nil, err
	}
	db, err := sc.openStore()
	if err != nil {
		return nil, err
	}
	arr := drive.NewArray(g.Width, db)
	defer arr.Close()

	if arr.Formatted(g) {
		nlog.Infof("%s: reusing formatted store %q", g, sc.Store)
	} else if err := arr.Format(g, codec); err != nil {
		return nil, err
	}
	if err := sc.inject(g, arr); err != nil {
		return nil, err
	}

	opts := []raid.Option{raid.WithCodec(codec), raid.WithStats(tracker)}
	if tp != nil {
		opts = append(opts, raid.WithTracer(tp))
	}
	eng, err := raid.NewEngine(cfg, g, arr, opts...)
	if err != nil {
		return nil, err
	}
	eng.Start()
	defer eng.Stop()

	var (
		rep      = &Report{Statuses: make(map[string]int, 4)}
		mu       sync.Mutex
		errs     = cos.NewErrs()
		started  = time.Now()
		wg, gctx = errgroup.WithContext(ctx)
	)
	wg.SetLimit(sc.Concurrency)
	for _, job := range jobs {
		wg.Go(func() error {
			res := eng.Read(gctx, job.spec.Region, job.alg, job.prio)
			err := check(job, &res)
			mu.Lock()
			rep.Statuses[res.Status.String()]++
			if res.Status == raid.StatusSuccess {
				rep.Bytes += int64(len(res.Data))
			}
			if err != nil {
				rep.Failed++
			}
			mu.Unlock()
			if err != nil {
				errs.Add(err)
			}
			return nil
		})
	}
	wg.Wait()
	rep.Elapsed = time.Since(started)
	rep.Stats = tracker.Snapshot()
	if _, err := errs.JoinErr(); err != nil {
		return rep, err
	}
	return rep, nil
}

// check compares the outcome of a read with the scenario's expectation and,
// on success, the data with the reference pattern
func check(job readJob, res *raid.Result) error {
	region := job.spec.Region
	if res.Status != job.expect {
		return errors.Errorf("%s %s: expected %s, got %s (%v)", job.alg, region, job.expect, res.Status, res.Err)
	}
	if res.Status == raid.StatusSuccess && !bytes.Equal(res.Data, drive.Expected(region)) {
		return errors.Errorf("%s %s: data mismatch", job.alg, region)
	}
	return nil
}
