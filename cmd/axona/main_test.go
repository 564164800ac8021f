// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/axona"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpikeFile(t *testing.T, path string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := axona.Create(f, axona.Header{
		BytesPerTimestamp: 4,
		SamplesPerSpike:   3,
		BytesPerSample:    1,
		Timebase:          96000,
		Duration:          10,
		SampleRate:        48000,
		Fields:            []axona.Field{{Key: "experimenter", Value: "hardcastle"}},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, ew.WriteSpike(axona.Spike{
			Time:      float64(i) + 0.5,
			Waveforms: [][]int{{-7, 0, 9}, {1, 2, 3}, {0, 0, 0}, {-1, -2, -3}},
		}))
	}
	require.NoError(t, ew.Close())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	err := app.Run(append([]string{"axona"}, args...))
	return out.String(), err
}

func TestInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "052301.6")
	writeSpikeFile(t, path)

	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "experimenter")
	assert.Contains(t, out, "hardcastle")
	assert.Contains(t, out, "num_spikes")

	_, err = run(t, "info")
	require.Error(t, err)
}

func TestDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "052301.6")
	writeSpikeFile(t, path)

	out, err := run(t, "dump", "--verify-timestamps", "--max-spikes", "2", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 3 spikes")
	assert.Contains(t, out, "0.500000")
	assert.Contains(t, out, "ch4 max")
	assert.NotContains(t, out, "2.500000")
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	writeSpikeFile(t, filepath.Join(dir, "052301.6"))

	cfgPath := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
session:
  identifier: "052301"
tetrodes:
  - path: 052301.6
output: out/052301.json
`), 0o644))

	_, err := run(t, "--log-file", filepath.Join(dir, "axona.log"), "convert", "--config", cfgPath)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "out", "052301.json"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = run(t, "convert")
	require.Error(t, err)
}
