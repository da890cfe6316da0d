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

// Package filter provides composable tuple predicates and a TupleSource that
// drops the tuples a predicate rejects. Dropping tuples keeps a sorted source
// sorted, so filtered sources may feed a merge or a sort buffer directly.
package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aaronlmathis/gocogroup/compare"
	"github.com/aaronlmathis/gocogroup/core"
)

// Predicate decides whether a tuple is kept.
type Predicate interface {
	Match(ctx context.Context, t *core.Tuple) (bool, error)
}

// PredicateFunc is a function adapter for Predicate.
type PredicateFunc func(ctx context.Context, t *core.Tuple) (bool, error)

// Match implements Predicate.
func (f PredicateFunc) Match(ctx context.Context, t *core.Tuple) (bool, error) {
	return f(ctx, t)
}

// field resolves name against the tuple's schema.
func field(t *core.Tuple, name string) (core.Field, any, error) {
	s := t.Schema()
	i := s.Index(name)
	if i < 0 {
		return core.Field{}, nil, &core.UnknownFieldError{Source: s.Name(), Field: name}
	}
	return s.Field(i), t.Get(i), nil
}

func compareField(name string, test func(c int) bool, value any) Predicate {
	return PredicateFunc(func(ctx context.Context, t *core.Tuple) (bool, error) {
		f, v, err := field(t, name)
		if err != nil {
			return false, err
		}
		c, err := compare.CompareValues(f.Type, v, value)
		if err != nil {
			return false, fmt.Errorf("filter %s: %w", name, err)
		}
		return test(c), nil
	})
}

// Equals keeps tuples whose field equals value. The value must have the
// field's Go type.
func Equals(name string, value any) Predicate {
	return compareField(name, func(c int) bool { return c == 0 }, value)
}

// GreaterThan keeps tuples whose field orders after value.
func GreaterThan(name string, value any) Predicate {
	return compareField(name, func(c int) bool { return c > 0 }, value)
}

// LessThan keeps tuples whose field orders before value.
func LessThan(name string, value any) Predicate {
	return compareField(name, func(c int) bool { return c < 0 }, value)
}

// Between keeps tuples whose field lies in [lo, hi].
func Between(name string, lo, hi any) Predicate {
	return And(
		Not(LessThan(name, lo)),
		Not(GreaterThan(name, hi)),
	)
}

// In keeps tuples whose field equals one of values.
func In(name string, values ...any) Predicate {
	ps := make([]Predicate, len(values))
	for i, v := range values {
		ps[i] = Equals(name, v)
	}
	return Or(ps...)
}

func stringField(name string, test func(s string) bool) Predicate {
	return PredicateFunc(func(ctx context.Context, t *core.Tuple) (bool, error) {
		f, v, err := field(t, name)
		if err != nil {
			return false, err
		}
		s, ok := v.(string)
		if f.Type != core.Utf8String || !ok {
			return false, fmt.Errorf("filter %s: %s field is not a string", name, f.Type)
		}
		return test(s), nil
	})
}

// HasPrefix keeps tuples whose string field starts with prefix.
func HasPrefix(name, prefix string) Predicate {
	return stringField(name, func(s string) bool { return strings.HasPrefix(s, prefix) })
}

// Contains keeps tuples whose string field contains substr.
func Contains(name, substr string) Predicate {
	return stringField(name, func(s string) bool { return strings.Contains(s, substr) })
}

// MatchesRegex keeps tuples whose string field matches pattern.
func MatchesRegex(name, pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return stringField(name, re.MatchString), nil
}

// And requires all predicates to match. It stops at the first rejection.
func And(ps ...Predicate) Predicate {
	return PredicateFunc(func(ctx context.Context, t *core.Tuple) (bool, error) {
		for _, p := range ps {
			ok, err := p.Match(ctx, t)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Or requires any predicate to match. An empty Or matches nothing.
func Or(ps ...Predicate) Predicate {
	return PredicateFunc(func(ctx context.Context, t *core.Tuple) (bool, error) {
		for _, p := range ps {
			ok, err := p.Match(ctx, t)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return PredicateFunc(func(ctx context.Context, t *core.Tuple) (bool, error) {
		ok, err := p.Match(ctx, t)
		return !ok && err == nil, err
	})
}
