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
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Reader reads Axona tetrode spike files.
type Reader struct {
	hdr     Header
	payload []byte
	opts    options
}

// Open reads a tetrode file into memory and parses its header.
func Open(r io.Reader, opts ...Option) (*Reader, error) {
	o := newOptions(opts)
	if o.channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", o.channels)
	}
	if o.maxSpikes < 0 {
		return nil, fmt.Errorf("invalid spike limit %d", o.maxSpikes)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	hdr, start, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	payload, err := splitPayload(data[start:])
	if err != nil {
		return nil, err
	}

	return &Reader{
		hdr:     hdr,
		payload: payload,
		opts:    o,
	}, nil
}

// ReadFile opens and decodes the tetrode file at path.
func ReadFile(path string, opts ...Option) (*Spikes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	r, err := Open(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	spikes, err := r.Decode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return spikes, nil
}

// Header returns the parsed file header.
func (er *Reader) Header() Header {
	return er.hdr
}

// Decode converts the binary payload into timestamps and waveforms.
func (er *Reader) Decode() (*Spikes, error) {
	hdr := er.hdr
	channels := er.opts.channels
	stride, err := hdr.recordSize(channels)
	if err != nil {
		return nil, err
	}

	// Compare by division so a huge num_spikes cannot overflow.
	if hdr.NumSpikes > len(er.payload)/stride {
		return nil, fmt.Errorf("%w: have %d bytes, header declares %d spikes of %d bytes", ErrTruncatedPayload, len(er.payload), hdr.NumSpikes, stride)
	} else if hdr.NumSpikes*stride < len(er.payload) {
		return nil, fmt.Errorf("%w: have %d bytes, header declares %d spikes of %d bytes", ErrExcessPayload, len(er.payload), hdr.NumSpikes, stride)
	}

	n := hdr.NumSpikes
	if er.opts.maxSpikes > 0 && er.opts.maxSpikes < n {
		n = er.opts.maxSpikes
	}

	spp := hdr.SamplesPerSpike
	bps := hdr.BytesPerSample
	bpt := hdr.BytesPerTimestamp
	block := hdr.channelBlock()
	timebase := float64(hdr.Timebase)

	times := make([]float64, n)
	samples := make([][]float64, channels)
	for c := range samples {
		samples[c] = make([]float64, n*spp)
	}

	for r := 0; r < n; r++ {
		recordStart := r * stride

		var first uint64
		for c := 0; c < channels; c++ {
			blockStart := recordStart + c*block

			// Every channel carries a copy of the record timestamp.
			if c == 0 {
				first = bigEndian(er.payload[blockStart : blockStart+bpt])
				times[r] = float64(first) / timebase
			} else if er.opts.verifyTimestamps {
				if ticks := bigEndian(er.payload[blockStart : blockStart+bpt]); ticks != first {
					return nil, fmt.Errorf("%w: spike %d channel %d has %d ticks, channel 1 has %d", ErrTimestampMismatch, r, c+1, ticks, first)
				}
			}

			sampleStart := blockStart + bpt
			row := samples[c][r*spp : (r+1)*spp]
			for j := range row {
				off := sampleStart + j*bps
				row[j] = float64(littleEndianSigned(er.payload[off : off+bps]))
			}
		}
	}

	spikes := &Spikes{
		Header:    hdr,
		Times:     times,
		Waveforms: make([]*mat.Dense, channels),
	}
	if n > 0 {
		for c := range spikes.Waveforms {
			spikes.Waveforms[c] = mat.NewDense(n, spp, samples[c])
		}
	}

	return spikes, nil
}

// TetrodeName derives the tetrode name from the numeric extension of a
// spike file, so "052301.6" becomes "tetrode6".
func TetrodeName(path string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	n, err := strconv.Atoi(ext)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%s has no tetrode number extension", path)
	}
	return fmt.Sprintf("tetrode%d", n), nil
}

// splitPayload returns the bytes preceding the data_end sentinel.
func splitPayload(rest []byte) ([]byte, error) {
	end := bytes.LastIndex(rest, []byte(dataEnd))
	if end < 0 {
		return nil, fmt.Errorf("%w: data_end sentinel not found", ErrMalformedHeader)
	}
	if tail := bytes.Trim(rest[end+len(dataEnd):], "\r\n"); len(tail) > 0 {
		return nil, fmt.Errorf("%w: %d unexpected bytes after data_end", ErrMalformedHeader, len(tail))
	}
	return rest[:end], nil
}

// bigEndian weighs byte i by 256^(len(b)-1-i).
func bigEndian(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// littleEndianSigned weighs byte j by 256^j and sign extends the result
// from the width of b, so a single byte of 200 becomes -56.
func littleEndianSigned(b []byte) int64 {
	var v uint64
	for j := len(b) - 1; j >= 0; j-- {
		v = v<<8 | uint64(b[j])
	}
	shift := 64 - 8*uint(len(b))
	return int64(v<<shift) >> shift
}
