/*
Package log provides structured logging for distribd using zerolog.

The log package wraps zerolog to give every component — the consensus
loop, the state reducer, the mirror engine, the peer transport — a
JSON-or-console logger with a consistent set of context fields,
initialized once at process start and shared package-level from there.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	log.Info("node starting")

	consensusLog := log.WithComponent("consensus")
	consensusLog.Info().Uint64("term", term).Msg("elected leader")

	log.WithDigest(digest).Debug().Msg("mirror transfer starting")
	log.WithRepository(repo).Warn().Msg("tag resolution miss")

# Context loggers

WithComponent, WithNodeID, WithDigest, and WithRepository each return a
child zerolog.Logger with one additional field set, so a caller doesn't
have to repeat `.Str("digest", d)` at every call site in, say, the
mirror's transfer loop.

# Levels

Debug is for the high-volume, development-only detail (a rejected vote,
a retry backoff); Info is the default production level (leader
elections, committed batches, completed transfers); Warn and Error cover
recoverable and investigatable failures respectively; Fatal — used when
the reducer rejects a committed entry (an unknown action tag or an
out-of-order index) — logs and exits the process. A corrupt log found at
recovery is not logged at Fatal: logstore.Open returns it as an error.
*/
package log
