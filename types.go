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
	"errors"
	"fmt"
)

const (
	// TetrodeChannels is the number of electrodes in a tetrode bundle.
	TetrodeChannels = 4

	dataStart = "data_start"
	dataEnd   = "\r\ndata_end"
)

// Header keys required before the payload can be decoded.
const (
	KeyNumSpikes         = "num_spikes"
	KeyBytesPerTimestamp = "bytes_per_timestamp"
	KeySamplesPerSpike   = "samples_per_spike"
	KeyBytesPerSample    = "bytes_per_sample"
	KeyTimebase          = "timebase"
	KeyDuration          = "duration"
	KeySampleRate        = "sample_rate"
)

var (
	// ErrMalformedHeader is returned when the header is missing a required
	// key, holds a non-numeric value or lacks one of the payload sentinels.
	ErrMalformedHeader = errors.New("axona: malformed header")
	// ErrEncodingMismatch is returned for non-ASCII bytes in the header.
	// It wraps ErrMalformedHeader.
	ErrEncodingMismatch = fmt.Errorf("%w: header is not ASCII", ErrMalformedHeader)
	// ErrTruncatedPayload is returned when the payload is shorter than the
	// header declares.
	ErrTruncatedPayload = errors.New("axona: truncated payload")
	// ErrExcessPayload is returned when the payload is longer than the
	// header declares.
	ErrExcessPayload = errors.New("axona: payload longer than declared")
	// ErrTimestampMismatch is returned by a verifying decode when the
	// channels of a record disagree on its timestamp.
	ErrTimestampMismatch = errors.New("axona: channel timestamps disagree")
)

// Header represents the parameter block of a tetrode file.
type Header struct {
	NumSpikes         int     // Number of spike records in the payload
	BytesPerTimestamp int     // Width of each channel's timestamp field
	SamplesPerSpike   int     // Waveform samples per channel per spike
	BytesPerSample    int     // Width of each waveform sample
	Timebase          int     // Timestamp ticks per second
	Duration          int     // Recording duration in seconds
	SampleRate        int     // Waveform sample rate in Hz
	Fields            []Field // Every header line, in file order
}

// Field is a single `key value` header line.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Lookup returns the raw value of the first header line with the given key.
func (h Header) Lookup(key string) (string, bool) {
	for _, f := range h.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Stride returns the size in bytes of one spike record.
func (h Header) Stride(channels int) int {
	return channels * h.channelBlock()
}

func (h Header) channelBlock() int {
	return h.BytesPerTimestamp + h.BytesPerSample*h.SamplesPerSpike
}

// Spike is a single decoded spike record.
type Spike struct {
	Time      float64 // Seconds since the start of the trial
	Waveforms [][]int // Samples, indexed by channel then sample
}
