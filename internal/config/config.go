package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// The worker bounds, timeout and tolerance follow the values the documentation
// build used before this tool existed.
const (
	// DefaultWorkerFloor is the concurrency used for small documents.
	DefaultWorkerFloor = 100

	// DefaultWorkerCeiling is the concurrency used for large documents.
	// Link checks are I/O bound, so a high ceiling is safe.
	DefaultWorkerCeiling = 200

	// DefaultSmallDocPages is the page count at or below which the floor applies.
	DefaultSmallDocPages = 500

	// DefaultLargeDocPages is the page count at or above which the ceiling applies.
	DefaultLargeDocPages = 2000

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is the number of extra attempts after a transient failure.
	DefaultRetries = 1

	// DefaultRetryBackoff is the wait before the first retry. Each further retry doubles it.
	DefaultRetryBackoff = 1 * time.Second

	// DefaultMaxRedirects bounds the redirect chain followed for one URL.
	DefaultMaxRedirects = 10

	// DefaultOverflowTolerance is the width margin in points before a cell counts as overflowing.
	DefaultOverflowTolerance = 2.0

	// DefaultRateLimit is the per-host request rate. Zero disables rate limiting.
	DefaultRateLimit = 0.0

	// DefaultCacheTTL is how long a stored link result is reused.
	DefaultCacheTTL = 24 * time.Hour

	// AppName is the application name used for XDG directory paths.
	AppName = "pdfaudit"

	// DefaultUserAgent is sent with every link check. Some documentation hosts
	// reject unknown agents, so it looks like a regular browser.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 pdfaudit"
)

// DefaultIgnoreFonts lists font name fragments whose text is left out of
// overflow measurement. Code samples set in a monospace font are allowed to
// run wide.
func DefaultIgnoreFonts() []string {
	return []string{"courier"}
}

// Config holds all configuration options for pdfaudit.
// It is populated from defaults, then the configuration file, then CLI flags,
// and passed down explicitly rather than kept in global state.
type Config struct {
	// Target is the PDF file to audit.
	Target string

	// WorkerFloor is the pool size for documents up to SmallDocPages.
	WorkerFloor int

	// WorkerCeiling is the pool size for documents from LargeDocPages on.
	WorkerCeiling int

	// SmallDocPages and LargeDocPages select between floor and ceiling.
	// Documents in between use the midpoint.
	SmallDocPages int
	LargeDocPages int

	// Timeout is the per-request timeout of a link check.
	Timeout time.Duration

	// Retries is the number of retries after a transient failure.
	// Zero disables retrying.
	Retries int

	// RetryBackoff is the delay before the first retry.
	RetryBackoff time.Duration

	// MaxRedirects bounds the redirect chain of a single check.
	MaxRedirects int

	// OverflowTolerance is the margin in points a cell's content may exceed its width.
	OverflowTolerance float64

	// IgnoreFonts lists lower-case font name fragments excluded from overflow measurement.
	IgnoreFonts []string

	// RateLimit is the default per-host request rate in requests per second.
	// Zero means unlimited. Hosts in the config file may override it.
	RateLimit float64

	// UserAgent is the User-Agent header of link checks.
	UserAgent string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit configuration file path, if any.
	ConfigFilePath string

	// HostConfigs holds the per-host settings loaded from the config file.
	HostConfigs *File

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; neither means plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// OnlyProblems hides links whose status is Ok or Redirected.
	OnlyProblems bool

	// FailOnProblems makes the check command exit non-zero when problems are found.
	FailOnProblems bool

	// LinksOnly and TablesOnly restrict the audit to one kind of check.
	LinksOnly  bool
	TablesOnly bool

	// Progress prints live progress to stderr.
	Progress bool

	// Preflight validates the PDF structure with pdfcpu before extraction.
	Preflight bool

	// DBDir is the directory holding the SQLite database.
	DBDir string

	// SaveToDB stores the run in the history database.
	SaveToDB bool

	// UseCache reuses link results stored within CacheTTL.
	UseCache bool

	// CacheTTL is how long stored link results stay valid.
	CacheTTL time.Duration
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		WorkerFloor:       DefaultWorkerFloor,
		WorkerCeiling:     DefaultWorkerCeiling,
		SmallDocPages:     DefaultSmallDocPages,
		LargeDocPages:     DefaultLargeDocPages,
		Timeout:           DefaultTimeout,
		Retries:           DefaultRetries,
		RetryBackoff:      DefaultRetryBackoff,
		MaxRedirects:      DefaultMaxRedirects,
		OverflowTolerance: DefaultOverflowTolerance,
		IgnoreFonts:       DefaultIgnoreFonts(),
		RateLimit:         DefaultRateLimit,
		UserAgent:         DefaultUserAgent,
		SaveToDB:          true,
		UseCache:          true,
		CacheTTL:          DefaultCacheTTL,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for pdfaudit.
// On Linux: ~/.local/share/pdfaudit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for pdfaudit.
// On Linux: ~/.config/pdfaudit
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Target == "" {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.WorkerFloor < 1 || c.WorkerCeiling < c.WorkerFloor {
		return ErrInvalidWorkerBounds
	}
	if c.SmallDocPages < 0 || c.LargeDocPages < c.SmallDocPages {
		return ErrInvalidThresholds
	}
	if c.Retries < 0 || c.RetryBackoff < 0 {
		return ErrInvalidRetries
	}
	if c.MaxRedirects < 0 {
		return ErrInvalidRedirects
	}
	if c.OverflowTolerance < 0 {
		return ErrInvalidTolerance
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.LinksOnly && c.TablesOnly {
		return ErrConflictingScope
	}
	return nil
}

// ApplySettings overlays the non-zero values of a config file's settings
// section onto c. Flags set on the command line are applied afterwards by
// the caller, so they win.
func (c *Config) ApplySettings(s Settings) {
	if s.WorkerFloor > 0 {
		c.WorkerFloor = s.WorkerFloor
	}
	if s.WorkerCeiling > 0 {
		c.WorkerCeiling = s.WorkerCeiling
	}
	if s.SmallDocPages > 0 {
		c.SmallDocPages = s.SmallDocPages
	}
	if s.LargeDocPages > 0 {
		c.LargeDocPages = s.LargeDocPages
	}
	if s.Timeout > 0 {
		c.Timeout = s.Timeout
	}
	if s.Retries != nil {
		c.Retries = *s.Retries
	}
	if s.RetryBackoff > 0 {
		c.RetryBackoff = s.RetryBackoff
	}
	if s.MaxRedirects > 0 {
		c.MaxRedirects = s.MaxRedirects
	}
	if s.OverflowTolerance != nil {
		c.OverflowTolerance = *s.OverflowTolerance
	}
	if s.IgnoreFonts != nil {
		c.IgnoreFonts = s.IgnoreFonts
	}
	if s.RateLimit > 0 {
		c.RateLimit = s.RateLimit
	}
	if s.UserAgent != "" {
		c.UserAgent = s.UserAgent
	}
	if s.Proxy != "" {
		c.ProxyAddress = s.Proxy
	}
	if s.CacheTTL > 0 {
		c.CacheTTL = s.CacheTTL
	}
}
