// Package config loads, normalizes, and validates behaviorpipe configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and resolves the per-run input and output
// roots from the capture host and user. The Config type is read once at
// startup; a Run value derived from it is passed explicitly to every
// component and never mutated afterward.
package config
