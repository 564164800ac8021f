// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package axona

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// Spikes holds the decoded contents of a tetrode file.
type Spikes struct {
	Header    Header       // Header parameters of the source file
	Times     []float64    // Spike times in seconds, from the first channel
	Waveforms []*mat.Dense // Per channel, one row per spike; nil when there are no spikes
}

// Summary describes a decoded spike file.
type Summary struct {
	Spikes    int     `json:"spikes"`
	FirstTime float64 `json:"first_time"`
	LastTime  float64 `json:"last_time"`
	// Declared spikes per second of recording.
	FiringRate float64 `json:"firing_rate"`
	// Mean and standard deviation of the peak-to-peak amplitude, per channel.
	PeakToPeak []float64 `json:"peak_to_peak"`
	PeakStdDev []float64 `json:"peak_to_peak_sd"`
}

// Len returns the number of decoded spikes.
func (s *Spikes) Len() int {
	return len(s.Times)
}

// ChannelNames returns the channel names, ch1 through chN.
func (s *Spikes) ChannelNames() []string {
	names := make([]string, len(s.Waveforms))
	for c := range names {
		names[c] = fmt.Sprintf("ch%d", c+1)
	}
	return names
}

// Channel returns the waveform matrix of the named channel.
func (s *Spikes) Channel(name string) (*mat.Dense, error) {
	for c, n := range s.ChannelNames() {
		if n == name {
			return s.Waveforms[c], nil
		}
	}
	return nil, fmt.Errorf("unknown channel %q", name)
}

// Spike returns a single spike record.
func (s *Spikes) Spike(i int) (Spike, error) {
	if i < 0 || i >= s.Len() {
		return Spike{}, fmt.Errorf("spike index out of range")
	}

	spike := Spike{
		Time:      s.Times[i],
		Waveforms: make([][]int, len(s.Waveforms)),
	}
	for c, w := range s.Waveforms {
		row := w.RawRowView(i)
		spike.Waveforms[c] = make([]int, len(row))
		for j, v := range row {
			spike.Waveforms[c][j] = int(v)
		}
	}
	return spike, nil
}

// Stack returns the waveforms indexed by spike, channel and sample.
func (s *Spikes) Stack() [][][]float64 {
	stack := make([][][]float64, s.Len())
	for i := range stack {
		stack[i] = make([][]float64, len(s.Waveforms))
		for c, w := range s.Waveforms {
			stack[i][c] = mat.Row(nil, i, w)
		}
	}
	return stack
}

// Summary computes spike timing and amplitude statistics.
func (s *Spikes) Summary() (Summary, error) {
	sum := Summary{
		Spikes:     s.Len(),
		PeakToPeak: make([]float64, len(s.Waveforms)),
		PeakStdDev: make([]float64, len(s.Waveforms)),
	}
	if s.Header.Duration > 0 {
		sum.FiringRate = float64(s.Header.NumSpikes) / float64(s.Header.Duration)
	}
	if s.Len() == 0 {
		return sum, nil
	}

	var err error
	if sum.FirstTime, err = stats.Min(s.Times); err != nil {
		return Summary{}, fmt.Errorf("error computing first spike time: %w", err)
	}
	if sum.LastTime, err = stats.Max(s.Times); err != nil {
		return Summary{}, fmt.Errorf("error computing last spike time: %w", err)
	}

	for c, w := range s.Waveforms {
		ptp := make(stats.Float64Data, s.Len())
		for i := range ptp {
			row := stats.Float64Data(w.RawRowView(i))
			hi, _ := row.Max()
			lo, _ := row.Min()
			ptp[i] = hi - lo
		}

		if sum.PeakToPeak[c], err = ptp.Mean(); err != nil {
			return Summary{}, fmt.Errorf("error computing ch%d amplitude: %w", c+1, err)
		}
		if sum.PeakStdDev[c], err = ptp.StandardDeviation(); err != nil {
			return Summary{}, fmt.Errorf("error computing ch%d amplitude spread: %w", c+1, err)
		}
	}

	return sum, nil
}
