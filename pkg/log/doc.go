// Package log captures statlink protocol events.
//
// Protocol capture is separate from operational logging (slog). It records a
// machine-readable trace of every frame, decoded message, control message,
// state transition and error seen on a session, keyed by connection ID.
//
//	// Console, during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// File, for later analysis with statlink-log
//	fl, _ := log.NewFileLogger("/var/log/statlink/client.slog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Files are a stream of CBOR-encoded Event values. Reader iterates them,
// optionally through a Filter.
package log
