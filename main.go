// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/aind/transcode/config"
	"github.com/aind/transcode/jobs"
	"github.com/aind/transcode/journal"
)

// Prints usage info.
func usage() {
	fmt.Fprintf(os.Stderr, "%s: usage:\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "%s [options] <config_file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "%s --journal <path> (--list-jobs [--since <duration>] | --show-job <id>)\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "See README.md for details on config files.\n")
	os.Exit(1)
}

func main() {
	journalPath := flag.String("journal", "", "record the run in the SQLite job journal at this path")
	rawDataDir := flag.String("raw-data-dir", "", "override endpoints.raw_data_dir")
	destDataDir := flag.String("dest-data-dir", "", "override endpoints.dest_data_dir")
	printConfig := flag.Bool("print-config", false, "print the resolved configuration and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	listJobsFlag := flag.Bool("list-jobs", false, "list journaled runs and exit")
	since := flag.Duration("since", 7*24*time.Hour, "with --list-jobs, how far back to look")
	showJobId := flag.String("show-job", "", "print the journaled run with this ID and exit")
	flag.Usage = usage
	flag.Parse()

	logLevel := new(slog.LevelVar)
	if *debug {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr,
		&slog.HandlerOptions{Level: logLevel})))

	// Journal queries need no configuration.
	if *listJobsFlag || *showJobId != "" {
		if *journalPath == "" || flag.NArg() != 0 {
			usage()
		}
		if err := journal.Init(*journalPath); err != nil {
			log.Panicf("Couldn't open the job journal: %s\n", err.Error())
		}
		var err error
		if *listJobsFlag {
			err = listJobs(os.Stdout, *since)
		} else {
			err = showJob(os.Stdout, *showJobId)
		}
		journal.Finalize()
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		return
	}

	// The only argument is the configuration filename.
	if flag.NArg() != 1 {
		usage()
	}
	configFile := flag.Arg(0)

	// Read the configuration file.
	slog.Info(fmt.Sprintf("Reading configuration from '%s'...", configFile))
	b, err := os.ReadFile(configFile)
	if err != nil {
		log.Panicf("Couldn't read configuration data: %s\n", err.Error())
	}

	// Initialize our configuration.
	if err := config.Init(b); err != nil {
		log.Panicf("Couldn't initialize the configuration: %s\n", err.Error())
	}
	config.ApplyOverrides(config.Overrides{
		RawDataDir:  *rawDataDir,
		DestDataDir: *destDataDir,
	})

	if *printConfig {
		data, err := config.Marshal(config.Current())
		if err != nil {
			log.Panicf("Couldn't serialize the configuration: %s\n", err.Error())
		}
		os.Stdout.Write(data)
		return
	}

	if *journalPath != "" {
		if err := journal.Init(*journalPath); err != nil {
			log.Panicf("Couldn't open the job journal: %s\n", err.Error())
		}
		defer journal.Finalize()
	}

	// Intercept the SIGINT, SIGHUP, SIGTERM, and SIGQUIT signals, canceling the
	// job as gracefully as possible if they are encountered.
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer stop()

	record, err := jobs.Run(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("Job %s %s: %s", record.Id.String(), record.Status, err.Error()))
		journal.Finalize()
		stop()
		os.Exit(1)
	}
	slog.Info(fmt.Sprintf("Job %s %s", record.Id.String(), record.Status))
}
