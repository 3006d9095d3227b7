package config

import (
	"path"
	"strings"
	"time"
)

// HostConfig holds settings that apply to link checks against one host.
type HostConfig struct {
	// Headers are extra HTTP headers sent to this host, e.g. an Authorization
	// header for a private documentation portal.
	Headers map[string]string `yaml:"headers,omitempty"`

	// RateLimit overrides the global per-host rate, in requests per second.
	RateLimit float64 `yaml:"rateLimit,omitempty"`

	// Skip excludes every link to this host from checking.
	Skip bool `yaml:"skip,omitempty"`

	// IgnorePatterns are glob patterns matched against the URL path.
	// Matching links are not checked.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`
}

// Ignores reports whether a link with the given URL path should not be checked.
func (h HostConfig) Ignores(urlPath string) bool {
	if h.Skip {
		return true
	}
	if urlPath == "" {
		urlPath = "/"
	}
	for _, pattern := range h.IgnorePatterns {
		if ok, err := path.Match(pattern, urlPath); err == nil && ok {
			return true
		}
	}
	return false
}

// Settings mirrors the numeric options of Config for the config file.
// Pointer fields distinguish "unset" from an explicit zero.
type Settings struct {
	WorkerFloor       int           `yaml:"workerFloor,omitempty"`
	WorkerCeiling     int           `yaml:"workerCeiling,omitempty"`
	SmallDocPages     int           `yaml:"smallDocPages,omitempty"`
	LargeDocPages     int           `yaml:"largeDocPages,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	Retries           *int          `yaml:"retries,omitempty"`
	RetryBackoff      time.Duration `yaml:"retryBackoff,omitempty"`
	MaxRedirects      int           `yaml:"maxRedirects,omitempty"`
	OverflowTolerance *float64      `yaml:"overflowTolerance,omitempty"`
	IgnoreFonts       []string      `yaml:"ignoreFonts,omitempty"`
	RateLimit         float64       `yaml:"rateLimit,omitempty"`
	UserAgent         string        `yaml:"userAgent,omitempty"`
	Proxy             string        `yaml:"proxy,omitempty"`
	CacheTTL          time.Duration `yaml:"cacheTTL,omitempty"`
}

// File represents the structure of the .pdfaudit configuration file.
type File struct {
	// Settings overrides the built-in defaults.
	Settings Settings `yaml:"settings,omitempty"`

	// Defaults applies to every host unless a host entry overrides it.
	Defaults HostConfig `yaml:"defaults,omitempty"`

	// Hosts maps host names to their settings. An entry also applies to
	// subdomains of the host unless a more specific entry exists.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`
}

// GetHostConfig returns the merged configuration for host.
// The most specific entry wins: "docs.example.com" is looked up first, then
// "example.com", then "com".
func (cf *File) GetHostConfig(host string) HostConfig {
	result := cf.Defaults
	if cf.Hosts == nil {
		return result
	}

	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for candidate := host; candidate != ""; {
		if hostConfig, ok := cf.Hosts[candidate]; ok {
			return mergeHostConfig(result, hostConfig)
		}
		i := strings.IndexByte(candidate, '.')
		if i < 0 {
			break
		}
		candidate = candidate[i+1:]
	}

	return result
}

// mergeHostConfig merges a host override onto defaults.
func mergeHostConfig(defaults, override HostConfig) HostConfig {
	result := defaults

	if len(override.Headers) > 0 {
		merged := make(map[string]string, len(defaults.Headers)+len(override.Headers))
		for k, v := range defaults.Headers {
			merged[k] = v
		}
		for k, v := range override.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if override.RateLimit > 0 {
		result.RateLimit = override.RateLimit
	}
	if override.Skip {
		result.Skip = true
	}
	if len(override.IgnorePatterns) > 0 {
		result.IgnorePatterns = override.IgnorePatterns
	}

	return result
}
