package guardian

import (
	"time"

	"github.com/t2linux-tools/t2guard/internal/guardian/cooldown"
	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
	"github.com/t2linux-tools/t2guard/pkg/options"
)

// Config carries everything the guardian needs to run. It is produced
// by the command line layer from flags and the config file.
type Config struct {
	// Registry is the driver and service inventory to reset.
	Registry *registry.Registry

	// CooldownWindow is the minimum gap between recovery attempts.
	CooldownWindow time.Duration

	// DesktopNotify controls notify-send delivery to the logged-in user.
	DesktopNotify bool

	Http *options.HttpOptions
	Mqtt *options.MqttOptions
}

// NewConfig returns a config with the stock T2 inventory and defaults.
func NewConfig() *Config {
	return &Config{
		Registry:       registry.Default(),
		CooldownWindow: cooldown.DefaultWindow,
		DesktopNotify:  true,
		Http:           options.NewHttpOptions(),
		Mqtt:           options.NewMqttOptions(),
	}
}
