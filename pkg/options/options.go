// Package options contains flags-bound configuration structs shared by
// t2guard commands.
package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group.
type IOptions interface {
	// Validate checks the values entered by the user at the command line.
	Validate() []error

	// AddFlags binds the option group to the specified FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress verifies a host:port listen address.
func ValidateAddress(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%q is not a valid listen address: %w", addr, err)
	}
	return nil
}
