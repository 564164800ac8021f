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
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
)

// Wide enough that rewriting the header never changes its length.
const numSpikesWidth = 10

// Writer writes Axona tetrode spike files.
type Writer struct {
	w      io.WriteSeeker
	hdr    Header
	opts   options
	spikes int    // Number of spikes written so far.
	record []byte // Scratch buffer for one encoded record.
}

// Create creates a new tetrode writer that writes to the given writer.
// The NumSpikes field of hdr is ignored and filled in by Close.
func Create(w io.WriteSeeker, hdr Header, opts ...Option) (*Writer, error) {
	o := newOptions(opts)
	if o.channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", o.channels)
	}

	hdr.NumSpikes = 0
	if err := hdr.validate(); err != nil {
		return nil, err
	}
	stride, err := hdr.recordSize(o.channels)
	if err != nil {
		return nil, err
	}

	// Free-text fields are written first, one per line.
	line := 0
	for _, f := range hdr.Fields {
		if f.Key == "" || strings.ContainsAny(f.Key, " \t") {
			return nil, fmt.Errorf("%w: invalid key %q", ErrMalformedHeader, f.Key)
		}
		// The reader stops at any line beginning with the sentinel.
		if strings.HasPrefix(f.Key, dataStart) || f.Key == strings.TrimPrefix(dataEnd, "\r\n") {
			return nil, fmt.Errorf("%w: reserved key %q", ErrMalformedHeader, f.Key)
		}
		if isRequiredKey(f.Key) {
			continue
		}
		line++
		if err := checkASCII(f.Key+" "+f.Value, line); err != nil {
			return nil, err
		}
	}

	ew := &Writer{
		w:      w,
		hdr:    hdr,
		opts:   o,
		record: make([]byte, stride),
	}

	// Write the initial header
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close terminates the payload and rewrites the header with the number of
// spikes written.
func (ew *Writer) Close() error {
	if _, err := io.WriteString(ew.w, dataEnd+"\r\n"); err != nil {
		return fmt.Errorf("error writing trailer: %w", err)
	}

	ew.hdr.NumSpikes = ew.spikes
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteSpike appends a single spike record.
func (ew *Writer) WriteSpike(spike Spike) error {
	if len(spike.Waveforms) != ew.opts.channels {
		return fmt.Errorf("expected %d channels, got %d", ew.opts.channels, len(spike.Waveforms))
	}

	bpt := ew.hdr.BytesPerTimestamp
	bps := ew.hdr.BytesPerSample

	ticks := math.Round(spike.Time * float64(ew.hdr.Timebase))
	if ticks < 0 || ticks >= math.Ldexp(1, 8*bpt) {
		return fmt.Errorf("spike time %gs does not fit in %d timestamp bytes", spike.Time, bpt)
	}

	lo := -(int64(1) << (8*bps - 1))
	hi := int64(1)<<(8*bps-1) - 1

	block := ew.hdr.channelBlock()
	for c, samples := range spike.Waveforms {
		if len(samples) != ew.hdr.SamplesPerSpike {
			return fmt.Errorf("channel %d: expected %d samples, got %d", c+1, ew.hdr.SamplesPerSpike, len(samples))
		}

		b := ew.record[c*block : (c+1)*block]
		putBigEndian(b[:bpt], uint64(ticks))
		for j, v := range samples {
			if int64(v) < lo || int64(v) > hi {
				return fmt.Errorf("channel %d: sample %d does not fit in %d bytes", c+1, v, bps)
			}
			putLittleEndian(b[bpt+j*bps:bpt+(j+1)*bps], uint64(v))
		}
	}

	if _, err := ew.w.Write(ew.record); err != nil {
		return err
	}

	ew.spikes++
	return nil
}

// writeHeader writes the header block and data_start sentinel at the
// beginning of the file.
func (ew *Writer) writeHeader() error {
	// Rewind to the beginning of the file.
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	writer := bufio.NewWriter(ew.w)

	// Free-text fields first, as the acquisition software does.
	for _, f := range ew.hdr.Fields {
		if isRequiredKey(f.Key) {
			continue
		}
		if _, err := fmt.Fprintf(writer, "%s %s\r\n", f.Key, f.Value); err != nil {
			return err
		}
	}

	lines := []string{
		fmt.Sprintf("%s %-*d", KeyNumSpikes, numSpikesWidth, ew.hdr.NumSpikes),
		fmt.Sprintf("%s %d", KeyBytesPerTimestamp, ew.hdr.BytesPerTimestamp),
		fmt.Sprintf("%s %d", KeySamplesPerSpike, ew.hdr.SamplesPerSpike),
		fmt.Sprintf("%s %d", KeyBytesPerSample, ew.hdr.BytesPerSample),
		fmt.Sprintf("%s %d hz", KeyTimebase, ew.hdr.Timebase),
		fmt.Sprintf("%s %d", KeyDuration, ew.hdr.Duration),
		fmt.Sprintf("%s %d hz", KeySampleRate, ew.hdr.SampleRate),
	}
	for _, line := range lines {
		if _, err := writer.WriteString(line + "\r\n"); err != nil {
			return err
		}
	}

	if _, err := writer.WriteString(dataStart); err != nil {
		return err
	}

	// Ensure all data is flushed to the underlying writer
	return writer.Flush()
}

func isRequiredKey(key string) bool {
	switch key {
	case KeyNumSpikes, KeyBytesPerTimestamp, KeySamplesPerSpike, KeyBytesPerSample,
		KeyTimebase, KeyDuration, KeySampleRate:
		return true
	}
	return false
}

func putBigEndian(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func putLittleEndian(b []byte, v uint64) {
	for j := range b {
		b[j] = byte(v)
		v >>= 8
	}
}
