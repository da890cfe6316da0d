//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoCogroup.
//
// GoCogroup is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoCogroup is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoCogroup. If not, see https://www.gnu.org/licenses/.

package gocogroup

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/compare"
	"github.com/aaronlmathis/gocogroup/config"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/partition"
	"github.com/aaronlmathis/gocogroup/rollup"
	"github.com/aaronlmathis/gocogroup/serialization"
	"github.com/aaronlmathis/gocogroup/supply"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// JobOptions configures a Job.
type JobOptions struct {
	Objects     *codec.ObjectRegistry
	Logger      logr.Logger
	Metrics     *rollup.Metrics
	Parallelism int // maximum partitions run at once, 0 for no limit
}

// JobOption represents a functional option for a Job.
type JobOption func(*JobOptions)

// WithObjects sets the registry resolving object serializers and comparators.
func WithObjects(r *codec.ObjectRegistry) JobOption {
	return func(o *JobOptions) { o.Objects = r }
}

// WithLogger sets the job logger, also handed to the rollup engine.
func WithLogger(l logr.Logger) JobOption {
	return func(o *JobOptions) { o.Logger = l }
}

// WithMetrics records rollup activity of every partition in m.
func WithMetrics(m *rollup.Metrics) JobOption {
	return func(o *JobOptions) { o.Metrics = m }
}

// WithParallelism limits how many partitions RunPartitions runs at once.
func WithParallelism(n int) JobOption {
	return func(o *JobOptions) { o.Parallelism = n }
}

func (o *JobOptions) withDefaults() {
	if o.Objects == nil {
		o.Objects = codec.NewObjectRegistry()
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
}

// Job is a configured grouping job.
type Job struct {
	cfg         *config.Config
	info        *serialization.Info
	codec       *codec.Codec
	serializer  *codec.TupleSerializer
	sort        *compare.SortComparator
	group       *compare.GroupComparator
	partitioner *partition.Partitioner
	engine      *rollup.Engine
	opts        JobOptions
}

// NewJob derives the layout of cfg and builds the shared job components. Every
// object class and comparator named by cfg must be registered in the object
// registry.
func NewJob(cfg *config.Config, opts ...JobOption) (*Job, error) {
	if cfg == nil {
		return nil, &core.ConfigError{Reason: "configuration is required"}
	}
	var o JobOptions
	for _, opt := range opts {
		opt(&o)
	}
	o.withDefaults()

	var errs []error
	for _, class := range cfg.ObjectClasses() {
		if _, ok := o.Objects.Serializer(class); !ok {
			errs = append(errs, &core.ConfigError{Reason: fmt.Sprintf("object class %q has no registered serializer", class)})
		}
	}
	for _, name := range cfg.Comparators() {
		if _, ok := o.Objects.Comparator(name); !ok {
			errs = append(errs, &core.ConfigError{Reason: fmt.Sprintf("comparator %q is not registered", name)})
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	info, err := cfg.Info()
	if err != nil {
		return nil, err
	}
	c := codec.New(o.Objects)
	sc, err := compare.NewSortComparator(info, c)
	if err != nil {
		return nil, fmt.Errorf("sort comparator: %w", err)
	}
	gc, err := compare.NewGroupComparator(info, c)
	if err != nil {
		return nil, fmt.Errorf("group comparator: %w", err)
	}
	if len(cfg.PartitionBy()) > 0 {
		o.Logger.Info("custom partition fields must be a subset of the group-by fields of every tuple sharing a group",
			"partitionBy", cfg.PartitionBy())
	}
	o.Logger.V(1).Info("job configured",
		"sources", info.NumSources(), "groupBy", info.GroupBy(),
		"maxDepth", info.MaxDepth(), "rollupBaseDepth", info.RollupBaseDepth())

	return &Job{
		cfg:         cfg,
		info:        info,
		codec:       c,
		serializer:  codec.NewTupleSerializer(info, c),
		sort:        sc,
		group:       gc,
		partitioner: partition.New(info, c),
		engine:      rollup.NewEngine(info, gc, rollup.WithLogger(o.Logger), rollup.WithMetrics(o.Metrics)),
		opts:        o,
	}, nil
}

// Config returns the job configuration.
func (j *Job) Config() *config.Config { return j.cfg }

// Info returns the derived serialization layout.
func (j *Job) Info() *serialization.Info { return j.info }

// Codec returns the tuple codec.
func (j *Job) Codec() *codec.Codec { return j.codec }

// Serializer returns the intermediate tuple serializer.
func (j *Job) Serializer() *codec.TupleSerializer { return j.serializer }

// SortComparator returns the full sort comparator.
func (j *Job) SortComparator() *compare.SortComparator { return j.sort }

// GroupComparator returns the group-by prefix comparator.
func (j *Job) GroupComparator() *compare.GroupComparator { return j.group }

// Partitioner returns the partial-key partitioner.
func (j *Job) Partitioner() *partition.Partitioner { return j.partitioner }

// Engine returns the rollup engine.
func (j *Job) Engine() *rollup.Engine { return j.engine }

// NewBuffer creates an empty sort buffer for the job layout.
func (j *Job) NewBuffer() *supply.Buffer {
	return supply.NewBuffer(j.serializer, j.sort)
}

// Shuffle routes pairs to n sort buffers by partition. Buffers sort on first
// read and are ready to pass to RunPartitions.
func (j *Job) Shuffle(pairs []supply.Pair, n int) ([]core.SortedSupply, error) {
	if n < 1 {
		return nil, fmt.Errorf("shuffle: partition count must be positive, got %d", n)
	}
	buffers := make([]*supply.Buffer, n)
	supplies := make([]core.SortedSupply, n)
	for i := range buffers {
		buffers[i] = j.NewBuffer()
		supplies[i] = buffers[i]
	}
	for _, p := range pairs {
		part, err := j.partitioner.Partition(p.SourceID, p.Tuple, n)
		if err != nil {
			return nil, err
		}
		if err := buffers[part].Add(p.SourceID, p.Tuple); err != nil {
			return nil, fmt.Errorf("shuffle: partition %d: %w", part, err)
		}
	}
	return supplies, nil
}

// Run processes one partition and closes s.
func (j *Job) Run(ctx context.Context, s core.SortedSupply, h rollup.Handler) error {
	err := j.engine.Run(ctx, s, h)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// RunPartitions processes supplies concurrently, one engine run per partition
// with a handler from factory. The first error cancels the remaining
// partitions and is returned. Every supply is closed.
func (j *Job) RunPartitions(ctx context.Context, supplies []core.SortedSupply, factory func(partition int) rollup.Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	if j.opts.Parallelism > 0 {
		g.SetLimit(j.opts.Parallelism)
	}
	for i, s := range supplies {
		g.Go(func() error {
			if err := j.Run(ctx, s, factory(i)); err != nil {
				j.opts.Logger.V(1).Info("partition failed", "partition", i, "error", err.Error())
				return fmt.Errorf("partition %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
