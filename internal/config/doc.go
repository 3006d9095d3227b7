// Package config provides configuration structures and utilities for pdfaudit.
// It defines the worker-pool bounds, link-check behavior, overflow tolerance,
// report preferences and the per-host settings read from a .pdfaudit file.
package config
