// Package options assembles the daemon configuration from defaults,
// the config file and command line flags.
package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/t2linux-tools/t2guard/internal/guardian"
	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
	"github.com/t2linux-tools/t2guard/pkg/log"
	"github.com/t2linux-tools/t2guard/pkg/options"
)

// Options is the full flag and config surface of t2guard.
type Options struct {
	Log  *log.Options         `json:"log" mapstructure:"log"`
	Http *options.HttpOptions `json:"http" mapstructure:"http"`
	Mqtt *options.MqttOptions `json:"mqtt" mapstructure:"mqtt"`

	// Cooldown is the minimum gap between recovery attempts.
	Cooldown time.Duration `json:"cooldown" mapstructure:"cooldown"`

	// DesktopNotify controls notify-send delivery to the desktop user.
	DesktopNotify bool `json:"desktop-notify" mapstructure:"desktop-notify"`

	// Drivers and Services override the built-in T2 inventory. Config
	// file only; both empty means the stock Broadcom setup.
	Drivers  []registry.DriverSpec  `json:"drivers" mapstructure:"drivers"`
	Services []registry.ServiceSpec `json:"services" mapstructure:"services"`
}

// NewOptions creates an Options with defaults matching the stock T2
// setup.
func NewOptions() *Options {
	return &Options{
		Log:           log.NewOptions(),
		Http:          options.NewHttpOptions(),
		Mqtt:          options.NewMqttOptions(),
		Cooldown:      20 * time.Second,
		DesktopNotify: true,
	}
}

// AddFlags registers all t2guard flags on the given flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Http.AddFlags(fs)
	o.Mqtt.AddFlags(fs)

	fs.DurationVar(&o.Cooldown, "cooldown", o.Cooldown, "Minimum gap between recovery attempts.")
	fs.BoolVar(&o.DesktopNotify, "desktop-notify", o.DesktopNotify, "Send desktop notifications to the logged-in user.")
}

// Validate checks the full option set.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)

	if o.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("cooldown must not be negative, got %v", o.Cooldown))
	}

	if _, err := o.registry(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (o *Options) registry() (*registry.Registry, error) {
	if len(o.Drivers) == 0 && len(o.Services) == 0 {
		return registry.Default(), nil
	}
	return registry.New(o.Drivers, o.Services)
}

// Config builds the guardian configuration.
func (o *Options) Config() (*guardian.Config, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	reg, err := o.registry()
	if err != nil {
		return nil, err
	}

	return &guardian.Config{
		Registry:       reg,
		CooldownWindow: o.Cooldown,
		DesktopNotify:  o.DesktopNotify,
		Http:           o.Http,
		Mqtt:           o.Mqtt,
	}, nil
}
