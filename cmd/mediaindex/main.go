/*
DESCRIPTION
  mediaindex is a command line tool that indexes a media track and writes
  its persistent index cache, optionally emitting a v2 timecode file.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main is a client of the source package that builds and persists
// track indexes ahead of time.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/mediasource/cachefile"
	"github.com/ausocean/mediasource/source"

	// Register the decode backends.
	_ "github.com/ausocean/mediasource/decode/flac"
	_ "github.com/ausocean/mediasource/decode/mp3"
	_ "github.com/ausocean/mediasource/decode/mpegps"
	_ "github.com/ausocean/mediasource/decode/wav"
)

// Current software version.
const version = "v1.0.0"

// Logging configuration.
const (
	logPath      = "mediaindex.log"
	logMaxSize   = 50 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version")
		audio       = flag.Bool("audio", false, "index an audio track instead of a video track")
		track       = flag.Int("track", -1, "track to index; negative selects the nth track of the type")
		cacheBase   = flag.String("cache", "", "index cache base path; empty stores next to the source")
		timecodes   = flag.String("timecodes", "", "write a v2 timecode file to this path (video only)")
		verbose     = flag.Bool("verbose", false, "log at debug level")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}

	verbosity := int8(logVerbosity)
	if *verbose {
		verbosity = logging.Debug
	}
	log := logging.New(verbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	if flag.NArg() != 1 {
		log.Fatal("usage: mediaindex [flags] <source>")
	}
	src := flag.Arg(0)

	cfg := source.Config{
		Source:    src,
		Track:     *track,
		CacheMode: cachefile.AlwaysAbsolute,
		CachePath: *cacheBase,
		Logger:    log,
		Progress:  progressPrinter(),
	}

	log.Info("indexing", "source", src, "track", *track, "version", version)

	if *audio {
		a, err := source.NewAudio(cfg)
		if err != nil {
			log.Fatal("could not index audio track", "error", err.Error())
		}
		defer a.Close()
		log.Info("audio track indexed",
			"track", a.Track(),
			"frames", a.NumFrames(),
			"samples", a.NumSamples(),
			"rate", a.Properties().SampleRate,
		)
		return
	}

	v, err := source.NewVideo(cfg)
	if err != nil {
		log.Fatal("could not index video track", "error", err.Error())
	}
	defer v.Close()
	fps := v.Properties().FPS
	log.Info("video track indexed",
		"track", v.Track(),
		"frames", v.NumFrames(),
		"rffFrames", v.NumRFFFrames(),
		"fps", fmt.Sprintf("%d/%d", fps.Num, fps.Den),
	)

	if *timecodes != "" {
		if err := v.WriteTimecodes(*timecodes); err != nil {
			log.Fatal("could not write timecodes", "error", err.Error())
		}
		log.Info("timecodes written", "path", *timecodes)
	}
}

// progressPrinter returns a progress callback that renders a percentage on
// stderr and swallows the completion sentinel.
func progressPrinter() source.ProgressFunc {
	last := -1
	return func(track int, current, total int64) bool {
		if current == math.MaxInt64 || total <= 0 {
			return true
		}
		pct := int(current * 100 / total)
		if pct != last {
			last = pct
			fmt.Fprintf(os.Stderr, "\rindexing track %d: %d%%", track, pct)
			if pct >= 100 {
				fmt.Fprintln(os.Stderr)
			}
		}
		return true
	}
}
