/*
Package log provides structured logging for driftshare using zerolog.

It wraps a single global zerolog.Logger with a small Config (level, JSON vs
console output, destination writer) and a set of context constructors for
the identifiers that show up throughout the pipeline: folder, share, and
job IDs.

# Usage

Initializing the logger:

	import "driftshare.io/driftshare/pkg/log"

	// JSON output, for a driftshare node running as a daemon
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output, for interactive CLI use
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("folder index complete")
	log.Debug("opening NNTP connection")
	log.Warn("segment upload retrying")
	log.Error("article post failed")
	log.Errorf("segment upload failed: %v", err)
	log.Fatal("cannot open store") // exits the process

Context loggers carry an identifier through every subsequent call so it
doesn't have to be repeated at each log site:

	folderLog := log.WithFolderID(folder.ID)
	folderLog.Info().Int("files", len(files)).Msg("indexed folder")

	shareLog := log.WithShareID(share.ID)
	shareLog.Info().Str("tier", string(share.Tier)).Msg("share published")

	jobLog := log.WithJobID(job.ID)
	jobLog.Error().Err(err).Msg("upload job failed")

WithComponent tags logs with the subsystem producing them (indexer,
segmenter, uploader, retriever, access):

	upLog := log.WithComponent("uploader")
	upLog.Info().Str("segment_id", seg.ID).Msg("segment posted")

Structured fields compose with zerolog's chained API directly off
log.Logger or any child logger returned by the With* helpers:

	log.Logger.Info().
		Str("folder_id", folder.ID).
		Int("redundancy", folder.RedundancyLevel).
		Msg("folder registered")

# Levels

Debug, Info, Warn, and Error map directly to zerolog's levels. Fatal logs
at zerolog's fatal level and then calls os.Exit via zerolog's Fatal event. Level
filtering happens once, globally, at Init time via
zerolog.SetGlobalLevel — child loggers created afterward inherit it.
*/
package log
