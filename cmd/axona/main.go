// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command axona inspects Axona tetrode spike files and converts recording
// sessions into a single container file.
//
// Usage:
//
//	axona info 052301.6
//	axona dump --max-spikes 100 --verify-timestamps 052301.6
//	axona convert --config session.yaml
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	flagDebug            = "debug"
	flagLogFile          = "log-file"
	flagConfig           = "config"
	flagVerifyTimestamps = "verify-timestamps"
	flagMaxSpikes        = "max-spikes"
	flagChannels         = "channels"
	flagShow             = "show"
)

func newApp() *cli.App {
	return &cli.App{
		Name:            "axona",
		Usage:           "decode Axona tetrode spike files",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "print the header of a spike file",
				ArgsUsage: "FILE",
				Action:    InfoAction,
			},
			{
				Name:      "dump",
				Usage:     "decode a spike file and print a summary",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagVerifyTimestamps,
						Usage: "fail unless every channel carries the same timestamp",
					},
					&cli.IntFlag{
						Name:  flagMaxSpikes,
						Usage: "decode at most `N` spikes (0 for all)",
					},
					&cli.IntFlag{
						Name:  flagChannels,
						Value: 4,
						Usage: "number of channels per record",
					},
					&cli.IntFlag{
						Name:  flagShow,
						Value: 5,
						Usage: "print the first `N` spikes",
					},
				},
				Action: DumpAction,
			},
			{
				Name:  "convert",
				Usage: "convert the tetrode files of a session",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load the session from `FILE`",
					},
				},
				Action: ConvertAction,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
