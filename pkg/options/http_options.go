package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions contains configuration items for the status HTTP server.
type HttpOptions struct {
	// Enabled controls whether the status server is started at all.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Addr is the server listen address.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout is the read/write timeout applied to connections.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
// The status server binds to loopback only; the watchdog is not a network service.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Enabled: true,
		Addr:    "127.0.0.1:9178",
		Timeout: 30 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to the status HTTP server to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "http.enabled", o.Enabled, "Serve the status/metrics HTTP endpoint.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Specify the status server bind address and port.")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "Timeout for server connections.")
}
