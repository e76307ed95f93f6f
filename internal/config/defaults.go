// ABOUTME: Centralized configuration defaults for herald
// ABOUTME: Contains polling cadence, presentation and display constants

package config

import "time"

// Polling settings
const (
	DefaultInterval    = 5 * time.Minute
	DefaultPostDelay   = 1 * time.Second
	DefaultHTTPTimeout = 30 * time.Second
)

// Display settings
const (
	DefaultListLimit = 20
	SeparatorWidth   = 60
	DateFormatShort  = "02 Jan 06 15:04 MST"
	DateFormatLong   = "Mon, 02 Jan 2006 15:04 MST"
)

// Backends
const (
	BackendSQLite = "sqlite"
	BackendCharm  = "charm"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "HERALD"
