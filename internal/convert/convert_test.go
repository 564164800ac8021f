// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package convert_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/axona"
	"github.com/OpenPSG/axona/internal/config"
	"github.com/OpenPSG/axona/internal/convert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

// writeTetrode writes a spike file holding n spikes one second apart.
func writeTetrode(t *testing.T, path string, n int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := axona.Create(f, axona.Header{
		BytesPerTimestamp: 4,
		SamplesPerSpike:   4,
		BytesPerSample:    1,
		Timebase:          96000,
		Duration:          60,
		SampleRate:        48000,
		Fields:            []axona.Field{{Key: "trial_date", Value: "Tuesday, 23 May 2023"}},
	})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		require.NoError(t, ew.WriteSpike(axona.Spike{
			Time: float64(i + 1),
			Waveforms: [][]int{
				{0, 10, -10, 0},
				{0, 20, -20, 0},
				{0, 30, -30, 0},
				{0, 40, -40, 0},
			},
		}))
	}
	require.NoError(t, ew.Close())
}

func testConfig(dir string, paths ...string) *config.Config {
	cfg := &config.Config{
		Session:        config.Session{Identifier: "052301", Lab: "Giocomo"},
		ElectrodeGroup: config.ElectrodeGroup{Filtering: "unknown"},
		Output:         filepath.Join(dir, "out", "052301.json"),
		Workers:        2,
	}
	for _, p := range paths {
		cfg.Tetrodes = append(cfg.Tetrodes, config.Tetrode{
			Path:        p,
			Location:    "entorhinal cortex",
			Description: "a 4-wired electrode",
		})
	}
	return cfg
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	tt6 := filepath.Join(dir, "052301.6")
	tt5 := filepath.Join(dir, "052301.5")
	writeTetrode(t, tt6, 3)
	writeTetrode(t, tt5, 2)

	cfg := testConfig(dir, tt6, tt5)
	cfg.Tetrodes[1].Name = "tt5"

	container, err := convert.New(cfg, zaptest.NewLogger(t).Sugar()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, container.ElectrodeGroups, 2)
	assert.Equal(t, "tetrode6", container.ElectrodeGroups[0].Name)
	assert.Equal(t, "tetrode6", container.ElectrodeGroups[0].Device)
	assert.Equal(t, "tt5", container.ElectrodeGroups[1].Name)

	require.Len(t, container.Electrodes, 8)
	for i, e := range container.Electrodes {
		assert.Equal(t, i, e.ID)
		assert.Equal(t, "entorhinal cortex", e.Location)
		assert.Nil(t, e.X)
	}
	assert.Equal(t, "tt5", container.Electrodes[4].Group)

	require.Len(t, container.SpikeEvents, 2)
	tetrode6 := container.SpikeEvents[0]
	assert.Equal(t, []int{0, 1, 2, 3}, tetrode6.Electrodes)
	assert.Equal(t, []int{4, 5, 6, 7}, container.SpikeEvents[1].Electrodes)
	assert.Equal(t, []float64{1, 2, 3}, tetrode6.Timestamps)
	require.Len(t, tetrode6.Data, 3)
	assert.Equal(t, []float64{0, 30, -30, 0}, tetrode6.Data[2][2])
	assert.Equal(t, 3, tetrode6.Parameters.NumSpikes)
	assert.Equal(t, 96000, tetrode6.Parameters.Timebase)
	assert.InDelta(t, 20.0, tetrode6.Summary.PeakToPeak[0], 1e-9)
	assert.Contains(t, tetrode6.Header, axona.Field{Key: "trial_date", Value: "Tuesday, 23 May 2023"})

	require.NoError(t, container.WriteFile(cfg.Output))

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)

	var decoded convert.Container
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, container.Session.Identifier, decoded.Session.Identifier)
	assert.Equal(t, container.SpikeEvents[1].Timestamps, decoded.SpikeEvents[1].Timestamps)
}

func TestRunMaxSpikes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "052301.1")
	writeTetrode(t, path, 5)

	cfg := testConfig(dir, path)
	cfg.MaxSpikes = 2
	cfg.VerifyTimestamps = true

	container, err := convert.New(cfg, zaptest.NewLogger(t).Sugar()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, container.SpikeEvents[0].Timestamps)
	assert.Equal(t, 5, container.SpikeEvents[0].Parameters.NumSpikes)
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "052301.1")
	writeTetrode(t, good, 2)

	bad := filepath.Join(dir, "052301.2")
	data, err := os.ReadFile(good)
	require.NoError(t, err)
	// Drop the last sample byte in front of the trailer.
	trailer := len("\r\ndata_end\r\n")
	corrupt := append(append([]byte{}, data[:len(data)-trailer-1]...), data[len(data)-trailer:]...)
	require.NoError(t, os.WriteFile(bad, corrupt, 0o644))

	missing := filepath.Join(dir, "052301.3")

	t.Run("Abort", func(t *testing.T) {
		cfg := testConfig(dir, good, bad)

		container, err := convert.New(cfg, zaptest.NewLogger(t).Sugar()).Run(context.Background())
		require.ErrorIs(t, err, axona.ErrTruncatedPayload)
		assert.Nil(t, container)
	})

	t.Run("Skip", func(t *testing.T) {
		cfg := testConfig(dir, good, bad, missing)
		cfg.SkipErrors = true

		container, err := convert.New(cfg, zaptest.NewLogger(t).Sugar()).Run(context.Background())
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 2)
		assert.ErrorIs(t, err, axona.ErrTruncatedPayload)
		assert.ErrorIs(t, err, os.ErrNotExist)

		require.NotNil(t, container)
		require.Len(t, container.ElectrodeGroups, 1)
		assert.Equal(t, "tetrode1", container.ElectrodeGroups[0].Name)
		assert.Len(t, container.Electrodes, 4)
	})

	t.Run("SkipAllFailed", func(t *testing.T) {
		cfg := testConfig(dir, bad, missing)
		cfg.SkipErrors = true

		container, err := convert.New(cfg, zaptest.NewLogger(t).Sugar()).Run(context.Background())
		require.Error(t, err)
		assert.Nil(t, container)
	})

	t.Run("NameClash", func(t *testing.T) {
		cfg := testConfig(dir, good, filepath.Join(dir, "other", "052301.1"))

		_, err := convert.New(cfg, zaptest.NewLogger(t).Sugar()).Run(context.Background())
		require.Error(t, err)
	})

	t.Run("NoTetrodeNumber", func(t *testing.T) {
		cfg := testConfig(dir, filepath.Join(dir, "052301.set"))

		_, err := convert.New(cfg, zaptest.NewLogger(t).Sugar()).Run(context.Background())
		require.Error(t, err)
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cfg := testConfig(dir, good)
		cfg.SkipErrors = true

		_, err := convert.New(cfg, zaptest.NewLogger(t).Sugar()).Run(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}
