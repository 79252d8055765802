// Package app builds the t2guard command tree.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/t2linux-tools/t2guard/cmd/t2guard/app/options"
	"github.com/t2linux-tools/t2guard/internal/guardian"
	"github.com/t2linux-tools/t2guard/internal/guardian/emitter"
	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
	"github.com/t2linux-tools/t2guard/internal/guardian/sequencer"
	"github.com/t2linux-tools/t2guard/internal/guardian/verify"
	"github.com/t2linux-tools/t2guard/pkg/log"
	"github.com/t2linux-tools/t2guard/pkg/version"
)

const (
	commandName = "t2guard"
	commandDesc = `t2guard watches the kernel log on Apple T2 laptops for WiFi and
Bluetooth firmware hang signatures and recovers the hardware by
reloading the Broadcom driver stack in the required order.`

	defaultConfigDir = "/etc/t2guard"
)

// NewCommand builds the root command with its subcommands.
func NewCommand() *cobra.Command {
	opts := options.NewOptions()
	var cfgFile string

	root := &cobra.Command{
		Use:           commandName,
		Short:         "WiFi/Bluetooth firmware watchdog for Apple T2 laptops",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfgFile, opts); err != nil {
				return err
			}
			log.Init(opts.Log)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the configuration file (default "+defaultConfigDir+"/config.yaml).")
	opts.AddFlags(root.PersistentFlags())

	root.AddCommand(
		newDaemonCommand(opts),
		newExecCommand(opts),
		newCheckCommand(),
		newVersionCommand(),
	)

	return root
}

// loadConfig merges the config file and environment into opts. Flags
// set on the command line keep precedence through the viper binding.
func loadConfig(cmd *cobra.Command, cfgFile string, opts *options.Options) error {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir)
	}

	v.SetEnvPrefix("T2GUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	return v.Unmarshal(opts)
}

func newDaemonCommand(opts *options.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Watch the kernel log and recover hung hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}

			cfg, err := opts.Config()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, err := guardian.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create guardian: %w", err)
			}

			log.Info("Starting t2guard daemon", "version", version.Version)
			return g.Run(ctx)
		},
	}
}

func newExecCommand(opts *options.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "exec",
		Short: "Run one recovery cycle immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}

			cfg, err := opts.Config()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			// One-shot invocation, no status server.
			cfg.Http.Enabled = false

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, err := guardian.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create guardian: %w", err)
			}

			attempt, err := g.TriggerRecovery(ctx, sequencer.TriggerManualExec)
			if err != nil {
				return err
			}

			if attempt.Outcome == sequencer.OutcomeFailure {
				return fmt.Errorf("recovery finished but hardware is still missing")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "recovery %s (wifi=%v bluetooth=%v)\n",
				attempt.Outcome, attempt.VerifiedWifi, attempt.VerifiedBluetooth)
			return nil
		},
	}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report WiFi and Bluetooth hardware presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}

			reg := registry.Default()
			engine := verify.New(reg, verify.NewSysfsProbe(), nil, emitter.Nop{})
			res := engine.Check()

			table := uitable.New()
			table.AddRow("RESOURCE", "DRIVER", "PRESENT")
			for _, r := range []struct {
				res     registry.Resource
				present bool
			}{
				{registry.ResourceWiFi, res.WifiOK},
				{registry.ResourceBluetooth, res.BluetoothOK},
			} {
				driver := "-"
				if d, ok := reg.DriverFor(r.res); ok {
					driver = d.Name
				}
				table.AddRow(string(r.res), driver, fmt.Sprintf("%v", r.present))
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)

			if !res.OK() {
				return fmt.Errorf("missing hardware: %s", strings.Join(missingNames(res), ", "))
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func missingNames(res verify.Result) []string {
	var out []string
	for _, r := range res.Missing() {
		out = append(out, string(r))
	}
	return out
}

func requireRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("this command manipulates kernel modules and must run as root")
	}
	return nil
}
