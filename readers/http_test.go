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

package readers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHTTPReader_JSONLines tests streaming a JSON lines export with retries
func TestHTTPReader_JSONLines(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprintln(w, `{"url":"/a","ts":1,"kind":"view"}`)
		fmt.Fprintln(w, `{"url":"/b","ts":2,"kind":"click"}`)
	}))
	defer srv.Close()

	r, err := NewHTTPReader(srv.URL, visitsSchema(),
		WithHTTPBearerToken("secret"), WithHTTPRetries(2, time.Millisecond))
	require.NoError(t, err)
	tuples := readAll(t, r)
	require.Len(t, tuples, 2)
	assert.Equal(t, "/b", tuples[1].Get(0))

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.RequestCount)
	assert.Equal(t, int64(1), stats.RetryCount)
	assert.Equal(t, int64(2), stats.TuplesRead)
	require.NoError(t, r.Close())
}

// TestHTTPReader_CSV tests CSV bodies with basic auth
func TestHTTPReader_CSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "etl" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "url;ts;kind\n/a;5;click\n")
	}))
	defer srv.Close()

	r, err := NewHTTPReader(srv.URL, visitsSchema(),
		WithHTTPBasicAuth("etl", "pw"), WithHTTPFormat(HTTPFormatCSV, WithCSVComma(';')))
	require.NoError(t, err)
	tuples := readAll(t, r)
	require.Len(t, tuples, 1)
	assert.Equal(t, []any{"/a", int64(5), int32(1)}, tuples[0].Values())

	r, err = NewHTTPReader(srv.URL, visitsSchema(), WithHTTPFormat(HTTPFormatCSV))
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	var herr *HTTPReaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusUnauthorized, herr.StatusCode)
	assert.Equal(t, int64(1), r.Stats().RequestCount, "client errors are not retried")
}

// TestHTTPReader_Errors tests configuration and decode failures
func TestHTTPReader_Errors(t *testing.T) {
	_, err := NewHTTPReader("http://localhost", visitsSchema(), WithHTTPFormat("xml"))
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"url":"/a"}`)
	}))
	defer srv.Close()
	r, err := NewHTTPReader(srv.URL, visitsSchema())
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	var herr *HTTPReaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "decode", herr.Op)
}
