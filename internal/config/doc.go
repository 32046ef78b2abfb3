// Package config loads, normalizes, and validates mqfile configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the MQFILE_QUEUE_KEY environment
// override. The Config type centralizes every knob the server and the client
// need: the shared queue key and permissions, polling back-off, the served
// root directory, transfer concurrency, shutdown drain time, history storage,
// and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
