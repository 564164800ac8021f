// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package convert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OpenPSG/axona"
	"github.com/OpenPSG/axona/internal/config"
)

// Container is the converted session, ready to be handed to an NWB writer.
type Container struct {
	Session         config.Session     `json:"session"`
	ElectrodeGroups []ElectrodeGroup   `json:"electrode_groups"`
	Electrodes      []Electrode        `json:"electrodes"`
	SpikeEvents     []SpikeEventSeries `json:"spike_events"`
}

// ElectrodeGroup is one tetrode bundle.
type ElectrodeGroup struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Device      string `json:"device"`
}

// Electrode is a row of the electrode table. Coordinates are unknown for
// tetrode recordings and encode as null.
type Electrode struct {
	ID        int      `json:"id"`
	Group     string   `json:"group"`
	Location  string   `json:"location"`
	Filtering string   `json:"filtering"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Z         *float64 `json:"z"`
}

// SpikeEventSeries holds the snippets recorded by one tetrode.
type SpikeEventSeries struct {
	Name       string        `json:"name"`
	Source     string        `json:"source"`
	Electrodes []int         `json:"electrodes"`
	Timestamps []float64     `json:"timestamps"`
	Data       [][][]float64 `json:"data"` // spike, channel, sample
	Parameters Parameters    `json:"parameters"`
	Header     []axona.Field `json:"header"`
	Summary    axona.Summary `json:"summary"`
}

// Parameters echoes the header of the source spike file.
type Parameters struct {
	NumSpikes         int `json:"num_spikes"`
	BytesPerTimestamp int `json:"bytes_per_timestamp"`
	SamplesPerSpike   int `json:"samples_per_spike"`
	BytesPerSample    int `json:"bytes_per_sample"`
	Timebase          int `json:"timebase"`
	Duration          int `json:"duration"`
	SampleRate        int `json:"sample_rate"`
}

func parametersOf(hdr axona.Header) Parameters {
	return Parameters{
		NumSpikes:         hdr.NumSpikes,
		BytesPerTimestamp: hdr.BytesPerTimestamp,
		SamplesPerSpike:   hdr.SamplesPerSpike,
		BytesPerSample:    hdr.BytesPerSample,
		Timebase:          hdr.Timebase,
		Duration:          hdr.Duration,
		SampleRate:        hdr.SampleRate,
	}
}

// WriteFile writes the container as indented JSON, creating parent
// directories as needed.
func (c *Container) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding container: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing container: %w", err)
	}

	return nil
}
