// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package axona

// Option configures a Reader or Writer.
type Option func(*options)

type options struct {
	channels         int
	verifyTimestamps bool
	maxSpikes        int
}

func newOptions(opts []Option) options {
	o := options{channels: TetrodeChannels}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithChannels sets the number of channels per record (default 4).
func WithChannels(n int) Option {
	return func(o *options) {
		o.channels = n
	}
}

// WithVerifyTimestamps decodes the timestamp of every channel and fails
// with ErrTimestampMismatch unless they all agree. By default only the
// first channel's timestamps are read.
func WithVerifyTimestamps(verify bool) Option {
	return func(o *options) {
		o.verifyTimestamps = verify
	}
}

// WithMaxSpikes limits decoding to the first n records. Zero means no limit.
// The payload length is still validated against the full header.
func WithMaxSpikes(n int) Option {
	return func(o *options) {
		o.maxSpikes = n
	}
}
