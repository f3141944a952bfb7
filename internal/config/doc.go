// Package config loads testrig settings.
//
// # Precedence
//
// Values are resolved in this order (highest to lowest priority):
//
//  1. Explicit overrides, usually command-line flags the user set
//  2. Environment variables (TESTRIG_OUTPUT_FORMAT, TESTRIG_BENCH_ROUNDS, ...)
//  3. The YAML file (.testrig.yaml in the working directory, or --config)
//  4. Defaults
//
// Environment variables map onto keys by stripping the TESTRIG_ prefix and
// splitting section from field at the first underscore:
//
//	TESTRIG_SERVER_STARTUP_TIMEOUT -> server.startup_timeout
//	TESTRIG_RUN_TAGS=db,slow       -> run.tags = [db slow]
//
// NO_COLOR (any non-empty value) and CI=true|1 are honored as well: both force the
// mono theme, and CI also disables the interactive progress view.
package config
