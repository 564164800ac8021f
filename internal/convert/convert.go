// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package convert decodes the tetrode files of a session and assembles
// them, with the session metadata, into a single container.
package convert

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OpenPSG/axona"
	"github.com/OpenPSG/axona/internal/config"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Converter converts one recording session.
type Converter struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

type tetrode struct {
	config.Tetrode
	name   string
	spikes *axona.Spikes
	sum    axona.Summary
}

// New returns a converter for the given session configuration.
func New(cfg *config.Config, logger *zap.SugaredLogger) *Converter {
	return &Converter{cfg: cfg, logger: logger}
}

// Run decodes every tetrode and builds the container.
//
// Unless skip_errors is set the first failure aborts the run. Otherwise
// failed tetrodes are left out and their errors are combined into the
// returned error alongside the container; the container is nil only if
// no tetrode could be decoded.
func (cv *Converter) Run(ctx context.Context) (*Container, error) {
	tetrodes, err := cv.resolve()
	if err != nil {
		return nil, err
	}

	cv.logger.Infow("converting session",
		"identifier", cv.cfg.Session.Identifier,
		"tetrodes", len(tetrodes),
		"workers", cv.cfg.Workers)

	var (
		mu   sync.Mutex
		errs error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cv.cfg.Workers)
	for _, t := range tetrodes {
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if err := cv.decode(t); err != nil {
				if !cv.cfg.SkipErrors {
					return err
				}
				cv.logger.Warnw("skipping tetrode", "name", t.name, "path", t.Path, "error", err)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	container := cv.assemble(tetrodes)
	if len(container.ElectrodeGroups) == 0 {
		return nil, multierr.Append(errors.New("no tetrodes converted"), errs)
	}

	cv.logger.Infow("converted session",
		"identifier", cv.cfg.Session.Identifier,
		"tetrodes", len(container.ElectrodeGroups),
		"failed", len(multierr.Errors(errs)))

	return container, errs
}

// resolve names every tetrode and rejects clashing names.
func (cv *Converter) resolve() ([]*tetrode, error) {
	tetrodes := make([]*tetrode, len(cv.cfg.Tetrodes))
	seen := make(map[string]string, len(tetrodes))
	for i, t := range cv.cfg.Tetrodes {
		name := t.Name
		if name == "" {
			var err error
			if name, err = axona.TetrodeName(t.Path); err != nil {
				return nil, err
			}
		}
		if other, ok := seen[name]; ok {
			return nil, fmt.Errorf("%s and %s are both named %s", other, t.Path, name)
		}
		seen[name] = t.Path
		tetrodes[i] = &tetrode{Tetrode: t, name: name}
	}
	return tetrodes, nil
}

func (cv *Converter) decode(t *tetrode) error {
	opts := []axona.Option{axona.WithVerifyTimestamps(cv.cfg.VerifyTimestamps)}
	if cv.cfg.MaxSpikes > 0 {
		opts = append(opts, axona.WithMaxSpikes(cv.cfg.MaxSpikes))
	}

	spikes, err := axona.ReadFile(t.Path, opts...)
	if err != nil {
		return err
	}

	sum, err := spikes.Summary()
	if err != nil {
		return fmt.Errorf("%s: %w", t.Path, err)
	}

	cv.logger.Debugw("decoded tetrode",
		"name", t.name,
		"spikes", spikes.Len(),
		"declared", spikes.Header.NumSpikes,
		"firing_rate", sum.FiringRate)

	t.spikes = spikes
	t.sum = sum
	return nil
}

// assemble builds the container in configuration order.
func (cv *Converter) assemble(tetrodes []*tetrode) *Container {
	c := &Container{Session: cv.cfg.Session}

	id := 0
	for _, t := range tetrodes {
		if t.spikes == nil {
			continue
		}

		c.ElectrodeGroups = append(c.ElectrodeGroups, ElectrodeGroup{
			Name:        t.name,
			Description: t.Description,
			Location:    t.Location,
			Device:      t.name,
		})

		ids := make([]int, len(t.spikes.Waveforms))
		for ch := range ids {
			ids[ch] = id
			c.Electrodes = append(c.Electrodes, Electrode{
				ID:        id,
				Group:     t.name,
				Location:  t.Location,
				Filtering: cv.cfg.ElectrodeGroup.Filtering,
			})
			id++
		}

		c.SpikeEvents = append(c.SpikeEvents, SpikeEventSeries{
			Name:       t.name,
			Source:     t.Path,
			Electrodes: ids,
			Timestamps: t.spikes.Times,
			Data:       t.spikes.Stack(),
			Parameters: parametersOf(t.spikes.Header),
			Header:     t.spikes.Header.Fields,
			Summary:    t.sum,
		})
	}

	return c
}
