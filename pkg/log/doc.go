/*
Package log provides structured logging for Rookery using zerolog.

The package wraps zerolog behind a small bootstrap: Init configures the global
logger once at process start (level, JSON or console output, destination), and
components derive child loggers carrying stable correlation fields.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("scheduler")
	logger.Info().Str("host_id", host.ID).Msg("host selected")

Deployment-protocol code logs under the (host_id, node_id) attempt key:

	logger := log.WithDeployment(ack.HostID, ack.NodeID)
	logger.Debug().Str("result", string(ack.Result)).Msg("ack received")

Console output (the default) is for interactive use; production deployments
run with JSONOutput enabled so fields stay machine-parseable.
*/
package log
