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

// Package gocogroup groups and co-groups sorted tuple streams from one or more
// sources, with optional rollup over a prefix of the group-by fields.
//
// Core Concepts:
//   - config.Builder: declares sources, aliases, group-by fields, orders, rollup and partitioning.
//   - Job: derives the binary layout from a Config and owns the shared codec,
//     comparators, partitioner and rollup engine.
//   - core.SortedSupply: a stream of (source, tuple) pairs already in sort order.
//   - rollup.Handler: receives nested open, element and close group callbacks.
//
// Example usage:
//
//	cfg, err := config.NewBuilder().
//	    AddSource("pages", pages).
//	    AddSource("visits", visits).
//	    GroupBy("url").
//	    OrderBy(core.NewCriteria().Add("url", core.Asc).AddSourceOrder(core.Asc)).
//	    Build()
//	if err != nil { log.Fatal(err) }
//	job, err := gocogroup.NewJob(cfg)
//	if err != nil { log.Fatal(err) }
//	buffers, err := job.Shuffle(pairs, 4)
//	if err != nil { log.Fatal(err) }
//	err = job.RunPartitions(ctx, buffers, func(int) rollup.Handler { return handler })
//
// Partitions are processed independently; everything a Job shares between
// them is read-only after NewJob.
package gocogroup
