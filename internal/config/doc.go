// Package config handles configuration loading for handoff-bridge.
//
// Configuration is loaded from a YAML file. Values may reference
// environment variables with ${VAR_NAME} syntax, and duration fields use
// Go's time.ParseDuration format:
//
//	ui:
//	  show_upload_button: true
//	  show_close_button: true
//	messages:
//	  waiting_for_agent: "An agent will be with you shortly."
//	history:
//	  limit: 50
//	session:
//	  close_fallback_delay: "5s"
//	availability:
//	  hours_start: 9
//	  hours_end: 17
//	  timezone: "Europe/Prague"
//	survey:
//	  enabled: true
//	transcript:
//	  enabled: false
//	database:
//	  path: "${HANDOFF_DB_PATH}"
//	logging:
//	  level: "info"
//	  format: "text"
//
// Load applies defaults for any field left empty, then validates; the
// resulting Config is immutable for the lifetime of the engine.
package config
