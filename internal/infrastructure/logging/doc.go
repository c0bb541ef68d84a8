// Package logging provides structured logging using uber/zap.
//
// Production output is JSON stamped with the service name and pid;
// development output (-dev) is colored console text. Components receive a
// named child logger, and lines about a game session carry GameID and
// HandleID fields so one launch can be followed across components:
//
//	logger, _ := logging.New(logging.FromSettings(cfg.Logging, dev))
//	sup := supervisor.New(logger.Component("supervisor"), ...)
//	log.Info("child started", logging.GameID(spec.GameID), logging.HandleID(h.ID()))
package logging
