package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultProbeTimeoutSecs = 10
	defaultCacheTTLMinutes  = 15
	defaultScansPerMinute   = 10
	defaultScanBurst        = 3
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Defaults DefaultValues
	Scan     ScanRuntimeConfig
}

// DefaultValues represent operator-level defaults, typically derived from the
// config file.
type DefaultValues struct {
	TimeoutSecs      int
	CacheTTLMinutes  int
	TelemetryEnabled bool
	ScansPerMinute   int
}

// ScanRuntimeConfig consolidates flag-driven settings for scan commands.
type ScanRuntimeConfig struct {
	TimeoutSecs      int
	CacheTTLMinutes  int
	ScansPerMinute   int
	ScanBurst        int
	Nameservers      []string
	ProbeTimeouts    []string
	TelemetryEnabled bool
	ProgressEnabled  bool
	Refresh          bool
	JSONOutput       bool
	FailOn           string
}

type defaultOverrides struct {
	TimeoutSecs      *int
	CacheTTLMinutes  *int
	TelemetryEnabled *bool
	ScansPerMinute   *int
	Nameservers      []string
	FailOn           string
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Defaults: DefaultValues{
			TimeoutSecs:      defaultProbeTimeoutSecs,
			CacheTTLMinutes:  defaultCacheTTLMinutes,
			TelemetryEnabled: false,
			ScansPerMinute:   defaultScansPerMinute,
		},
		Scan: ScanRuntimeConfig{
			TimeoutSecs:      defaultProbeTimeoutSecs,
			CacheTTLMinutes:  defaultCacheTTLMinutes,
			ScansPerMinute:   defaultScansPerMinute,
			ScanBurst:        defaultScanBurst,
			Nameservers:      []string{},
			ProbeTimeouts:    []string{},
			TelemetryEnabled: false,
			ProgressEnabled:  true,
		},
	}
}

func loadDefaultOverrides() defaultOverrides {
	overrides := defaultOverrides{}

	if viper.IsSet("defaults.timeout_secs") {
		val := viper.GetInt("defaults.timeout_secs")
		overrides.TimeoutSecs = &val
	}

	if viper.IsSet("defaults.cache_ttl_minutes") {
		val := viper.GetInt("defaults.cache_ttl_minutes")
		overrides.CacheTTLMinutes = &val
	}

	if viper.IsSet("defaults.telemetry") {
		val := viper.GetBool("defaults.telemetry")
		overrides.TelemetryEnabled = &val
	}

	if viper.IsSet("defaults.scans_per_minute") {
		val := viper.GetInt("defaults.scans_per_minute")
		overrides.ScansPerMinute = &val
	}

	if viper.IsSet("defaults.nameservers") {
		overrides.Nameservers = viper.GetStringSlice("defaults.nameservers")
	}

	if viper.IsSet("defaults.fail_on") {
		overrides.FailOn = viper.GetString("defaults.fail_on")
	}

	return overrides
}

// applyConfigDefaults merges config file defaults into the runtime config when
// the user did not explicitly override the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	overrides := loadDefaultOverrides()

	if overrides.TimeoutSecs != nil {
		applyIntDefault(scanCmd.Flags(), "timeout", *overrides.TimeoutSecs, func(v int) {
			cliConfig.Defaults.TimeoutSecs = v
			cliConfig.Scan.TimeoutSecs = v
		})
	}

	if overrides.CacheTTLMinutes != nil {
		applyIntDefault(scanCmd.Flags(), "cache-ttl", *overrides.CacheTTLMinutes, func(v int) {
			cliConfig.Defaults.CacheTTLMinutes = v
			cliConfig.Scan.CacheTTLMinutes = v
		})
	}

	if overrides.TelemetryEnabled != nil {
		applyBoolDefault(scanCmd.Flags(), "telemetry", *overrides.TelemetryEnabled, func(v bool) {
			cliConfig.Defaults.TelemetryEnabled = v
			cliConfig.Scan.TelemetryEnabled = v
		})
	}

	if overrides.ScansPerMinute != nil {
		applyIntDefault(scanCmd.Flags(), "scans-per-minute", *overrides.ScansPerMinute, func(v int) {
			cliConfig.Defaults.ScansPerMinute = v
			cliConfig.Scan.ScansPerMinute = v
		})
	}

	if len(overrides.Nameservers) > 0 {
		flag := scanCmd.Flags().Lookup("nameservers")
		if flag == nil || !flag.Changed {
			cliConfig.Scan.Nameservers = overrides.Nameservers
		}
	}

	if overrides.FailOn != "" {
		setStringFlagIfUnset(scanCmd.Flags(), "fail-on", overrides.FailOn)
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
