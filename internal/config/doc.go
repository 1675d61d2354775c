// Package config loads, normalizes, and validates softdex configuration data.
//
// It supplies repository defaults (per-OS platform roots included), expands
// user paths (including tilde shortcuts), reads TOML files, and honours
// environment fallbacks such as SOFTDEX_DATA_DIR. The Config type centralizes
// every knob the scanner, enrichment scheduler, daemon, and CLI need so that
// database locations and provider endpoints are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
