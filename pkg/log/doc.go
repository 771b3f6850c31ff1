/*
Package log provides structured logging for elbscaler using zerolog.

The package wraps a single global zerolog.Logger. Call Init once at process
start, then derive child loggers per component:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("scheduler")
	logger.Info().Int("desired", 2).Msg("Desired replica count changed")

# Fields

Component loggers carry a "component" field. ForTask derives a logger from
a component logger with an integer "task_id" field and, when known, "host".

# Levels

  - debug: offer rejections and other high-frequency observations
  - info: task lifecycle transitions, status updates for unknown tasks
  - warn: degraded external dependencies
  - error: failed load balancer calls, host resolution misses, metric query errors

Before Init runs the global logger writes JSON to stdout, so packages may log
from tests without initialization.
*/
package log
