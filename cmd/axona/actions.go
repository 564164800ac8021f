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
	"errors"
	"fmt"
	"os"

	"github.com/OpenPSG/axona"
	"github.com/OpenPSG/axona/internal/config"
	"github.com/OpenPSG/axona/internal/convert"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
)

// InfoAction prints the header of a spike file.
func InfoAction(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := axona.Open(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	hdr := r.Header()

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"Key", "Value"})
	for _, field := range hdr.Fields {
		t.AppendRow(table.Row{field.Key, field.Value})
	}
	t.AppendFooter(table.Row{"record bytes", hdr.Stride(axona.TetrodeChannels)})
	t.Render()

	return nil
}

// DumpAction decodes a spike file and prints its summary and first spikes.
func DumpAction(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}

	spikes, err := axona.ReadFile(path,
		axona.WithChannels(c.Int(flagChannels)),
		axona.WithVerifyTimestamps(c.Bool(flagVerifyTimestamps)),
		axona.WithMaxSpikes(c.Int(flagMaxSpikes)),
	)
	if err != nil {
		return err
	}

	sum, err := spikes.Summary()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s: %d of %d spikes, %.3fs to %.3fs, %.2f Hz\n",
		path, sum.Spikes, spikes.Header.NumSpikes, sum.FirstTime, sum.LastTime, sum.FiringRate)

	amp := table.NewWriter()
	amp.SetOutputMirror(c.App.Writer)
	amp.AppendHeader(table.Row{"Channel", "Mean peak-to-peak", "SD"})
	for ch, name := range spikes.ChannelNames() {
		amp.AppendRow(table.Row{name, fmt.Sprintf("%.2f", sum.PeakToPeak[ch]), fmt.Sprintf("%.2f", sum.PeakStdDev[ch])})
	}
	amp.Render()

	show := min(c.Int(flagShow), spikes.Len())
	if show <= 0 {
		return nil
	}

	header := table.Row{"#", "Time (s)"}
	for _, name := range spikes.ChannelNames() {
		header = append(header, name+" min", name+" max")
	}

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(header)
	for i := 0; i < show; i++ {
		spike, err := spikes.Spike(i)
		if err != nil {
			return err
		}
		row := table.Row{i, fmt.Sprintf("%.6f", spike.Time)}
		for _, w := range spike.Waveforms {
			row = append(row, minOf(w), maxOf(w))
		}
		t.AppendRow(row)
	}
	t.Render()

	return nil
}

// ConvertAction converts the session described by a config file.
func ConvertAction(c *cli.Context) error {
	logger, closeLog := newLogger(c.Bool(flagDebug), c.String(flagLogFile))
	defer func() {
		_ = logger.Sync()
		_ = closeLog()
	}()

	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return err
	}

	container, err := convert.New(cfg, logger).Run(c.Context)
	if container == nil {
		return err
	}
	if err != nil {
		logger.Warnw("some tetrodes were skipped", "error", err)
	}

	if err := container.WriteFile(cfg.Output); err != nil {
		return err
	}

	logger.Infow("wrote container", "path", cfg.Output)
	return nil
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.New("expected exactly one spike file")
	}
	return c.Args().First(), nil
}

func minOf(v []int) int {
	m := v[0]
	for _, x := range v[1:] {
		m = min(m, x)
	}
	return m
}

func maxOf(v []int) int {
	m := v[0]
	for _, x := range v[1:] {
		m = max(m, x)
	}
	return m
}
