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

package rollup

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of rollup engines. One Metrics value
// may be shared by the engines of all partitions.
type Metrics struct {
	Tuples         prometheus.Counter
	Elements       prometheus.Counter
	GroupsOpened   *prometheus.CounterVec
	OrderingErrors prometheus.Counter
}

// NewMetrics creates and registers the rollup metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	tuples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gocogroup_rollup_tuples_total",
		Help: "Total tuples pulled from sorted supplies",
	})

	elements := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gocogroup_rollup_elements_total",
		Help: "Total element callbacks, one per distinct full group key",
	})

	groupsOpened := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gocogroup_rollup_groups_opened_total",
		Help: "Total groups opened per depth",
	}, []string{"depth"})

	orderingErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gocogroup_rollup_ordering_errors_total",
		Help: "Total partitions aborted by an ordering violation",
	})

	reg.MustRegister(tuples, elements, groupsOpened, orderingErrors)

	return &Metrics{
		Tuples:         tuples,
		Elements:       elements,
		GroupsOpened:   groupsOpened,
		OrderingErrors: orderingErrors,
	}
}

func (m *Metrics) tuple() {
	if m != nil {
		m.Tuples.Inc()
	}
}

func (m *Metrics) element() {
	if m != nil {
		m.Elements.Inc()
	}
}

func (m *Metrics) opened(depth int) {
	if m != nil {
		m.GroupsOpened.WithLabelValues(strconv.Itoa(depth)).Inc()
	}
}

func (m *Metrics) orderingError() {
	if m != nil {
		m.OrderingErrors.Inc()
	}
}
