// Package logging provides structured logging for the Gray Logic Z-Wave service.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service/version fields on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	gw := logger.Component("gateway")
//	gw.Info("frame received", "node", 5, "class", "SWITCH_BINARY")
//
// *Logger satisfies the small Logger interfaces declared by the bridge,
// MQTT and API packages.
package logging
