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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	maxBytesPerSample    = 4
	maxBytesPerTimestamp = 8
)

// parseHeader tokenizes the header lines preceding the data_start sentinel
// and returns the header along with the offset of the first payload byte.
func parseHeader(data []byte) (Header, int, error) {
	var hdr Header

	line := 0
	for pos := 0; pos < len(data); line++ {
		next := len(data)
		if i := bytes.IndexByte(data[pos:], '\n'); i >= 0 {
			next = pos + i + 1
		}
		raw := data[pos:next]

		// The binary payload follows the sentinel on the same line.
		if bytes.HasPrefix(raw, []byte(dataStart)) {
			if err := hdr.resolve(); err != nil {
				return Header{}, 0, err
			}
			return hdr, pos + len(dataStart), nil
		}

		text := strings.TrimRight(string(raw), "\r\n")
		if err := checkASCII(text, line+1); err != nil {
			return Header{}, 0, err
		}

		text = strings.TrimSpace(text)
		if text == "" {
			pos = next
			continue
		}

		key := strings.Fields(text)[0]
		hdr.Fields = append(hdr.Fields, Field{
			Key:   key,
			Value: strings.TrimSpace(text[len(key):]),
		})
		pos = next
	}

	return Header{}, 0, fmt.Errorf("%w: %s sentinel not found", ErrMalformedHeader, dataStart)
}

// resolve fills the numeric header fields from the raw key-value pairs.
func (h *Header) resolve() error {
	required := []struct {
		key string
		dst *int
	}{
		{KeyNumSpikes, &h.NumSpikes},
		{KeyBytesPerTimestamp, &h.BytesPerTimestamp},
		{KeySamplesPerSpike, &h.SamplesPerSpike},
		{KeyBytesPerSample, &h.BytesPerSample},
		{KeyTimebase, &h.Timebase},
		{KeyDuration, &h.Duration},
		{KeySampleRate, &h.SampleRate},
	}

	for _, req := range required {
		var (
			value string
			found bool
		)
		for _, f := range h.Fields {
			if f.Key != req.key {
				continue
			}
			if found {
				return fmt.Errorf("%w: duplicate key %q", ErrMalformedHeader, req.key)
			}
			value, found = f.Value, true
		}
		if !found {
			return fmt.Errorf("%w: missing key %q", ErrMalformedHeader, req.key)
		}

		n, err := parseLeadingInt(value)
		if err != nil {
			return fmt.Errorf("%w: error parsing %s: %w", ErrMalformedHeader, req.key, err)
		}
		*req.dst = n
	}

	return h.validate()
}

func (h Header) validate() error {
	switch {
	case h.NumSpikes < 0:
		return fmt.Errorf("%w: negative %s %d", ErrMalformedHeader, KeyNumSpikes, h.NumSpikes)
	case h.Timebase <= 0:
		return fmt.Errorf("%w: %s must be positive, got %d", ErrMalformedHeader, KeyTimebase, h.Timebase)
	case h.SamplesPerSpike <= 0:
		return fmt.Errorf("%w: %s must be positive, got %d", ErrMalformedHeader, KeySamplesPerSpike, h.SamplesPerSpike)
	case h.BytesPerTimestamp <= 0 || h.BytesPerTimestamp > maxBytesPerTimestamp:
		return fmt.Errorf("%w: %s must be between 1 and %d, got %d", ErrMalformedHeader, KeyBytesPerTimestamp, maxBytesPerTimestamp, h.BytesPerTimestamp)
	case h.BytesPerSample <= 0 || h.BytesPerSample > maxBytesPerSample:
		return fmt.Errorf("%w: %s must be between 1 and %d, got %d", ErrMalformedHeader, KeyBytesPerSample, maxBytesPerSample, h.BytesPerSample)
	case h.SamplesPerSpike > (math.MaxInt-h.BytesPerTimestamp)/h.BytesPerSample:
		return fmt.Errorf("%w: %s %d is too large", ErrMalformedHeader, KeySamplesPerSpike, h.SamplesPerSpike)
	}
	return nil
}

// recordSize is Stride for a validated header, failing instead of
// overflowing.
func (h Header) recordSize(channels int) (int, error) {
	block := h.channelBlock()
	if channels <= 0 || block > math.MaxInt/channels {
		return 0, fmt.Errorf("%w: %d channels of %d bytes do not fit in a record", ErrMalformedHeader, channels, block)
	}
	return channels * block, nil
}

// checkASCII rejects anything but printable ASCII and tabs.
func checkASCII(text string, line int) error {
	for i := 0; i < len(text); i++ {
		if c := text[i]; (c < 0x20 && c != '\t') || c > 0x7e {
			return fmt.Errorf("%w: byte 0x%02x on line %d", ErrEncodingMismatch, c, line)
		}
	}
	return nil
}

// parseLeadingInt parses the first token of a value, so "96000 hz" is 96000.
func parseLeadingInt(value string) (int, error) {
	tokens := strings.Fields(value)
	if len(tokens) == 0 {
		return 0, errors.New("empty value")
	}
	return strconv.Atoi(tokens[0])
}
