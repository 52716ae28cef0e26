package cmd

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestApplyIntDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("timeout", 0, "")

	var applied int
	applyIntDefault(flags, "timeout", 15, func(v int) {
		applied = v
	})
	if applied != 15 {
		t.Fatalf("expected setter to receive 15, got %d", applied)
	}

	// When flag already set, setter should not run.
	if err := flags.Set("timeout", "7"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	applied = 0
	applyIntDefault(flags, "timeout", 20, func(v int) {
		applied = v
	})
	if applied != 0 {
		t.Fatalf("setter should not run when flag overridden, got %d", applied)
	}
}

func TestApplyBoolDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("telemetry", false, "")

	applied := false
	applyBoolDefault(flags, "telemetry", true, func(v bool) {
		applied = v
	})
	if !applied {
		t.Fatal("expected setter to run with true")
	}

	if err := flags.Set("telemetry", "false"); err != nil {
		t.Fatalf("failed to set bool flag: %v", err)
	}
	applied = true
	applyBoolDefault(flags, "telemetry", true, func(v bool) {
		applied = v
	})
	if !applied {
		t.Fatalf("setter should not change value when flag already set")
	}
}

func TestSetStringFlagIfUnset(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("fail-on", "", "")

	setStringFlagIfUnset(flags, "fail-on", "warning")
	if got := flags.Lookup("fail-on").Value.String(); got != "warning" {
		t.Fatalf("expected fail-on to be warning, got %s", got)
	}

	if err := flags.Set("fail-on", "critical"); err != nil {
		t.Fatalf("failed to set fail-on: %v", err)
	}
	setStringFlagIfUnset(flags, "fail-on", "info")
	if got := flags.Lookup("fail-on").Value.String(); got != "critical" {
		t.Fatalf("expected fail-on to remain critical, got %s", got)
	}
}

func TestNewCLIConfigDefaults(t *testing.T) {
	cfg := newCLIConfig()
	if cfg.Scan.TimeoutSecs != defaultProbeTimeoutSecs {
		t.Fatalf("unexpected timeout default: %d", cfg.Scan.TimeoutSecs)
	}
	if cfg.Scan.CacheTTLMinutes != defaultCacheTTLMinutes {
		t.Fatalf("unexpected cache TTL default: %d", cfg.Scan.CacheTTLMinutes)
	}
	if cfg.Scan.ScansPerMinute != defaultScansPerMinute {
		t.Fatalf("unexpected scans-per-minute default: %d", cfg.Scan.ScansPerMinute)
	}
	if cfg.Scan.ScanBurst != defaultScanBurst {
		t.Fatalf("unexpected scan burst default: %d", cfg.Scan.ScanBurst)
	}
	if cfg.Scan.TelemetryEnabled {
		t.Fatal("expected telemetry to be disabled by default")
	}
	if !cfg.Scan.ProgressEnabled {
		t.Fatal("expected progress display to be enabled by default")
	}
	if cfg.Scan.FailOn != "" {
		t.Fatalf("expected no fail-on threshold by default, got %s", cfg.Scan.FailOn)
	}
	if len(cfg.Scan.Nameservers) != 0 {
		t.Fatalf("expected no custom nameservers by default, got %v", cfg.Scan.Nameservers)
	}
}

func TestLoadDefaultOverrides(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("defaults.timeout_secs", 30)
	viper.Set("defaults.cache_ttl_minutes", 45)
	viper.Set("defaults.telemetry", true)
	viper.Set("defaults.scans_per_minute", 5)
	viper.Set("defaults.nameservers", []string{"9.9.9.9:53"})
	viper.Set("defaults.fail_on", "error")

	overrides := loadDefaultOverrides()

	if overrides.TimeoutSecs == nil || *overrides.TimeoutSecs != 30 {
		t.Fatalf("expected timeout override 30, got %+v", overrides.TimeoutSecs)
	}
	if overrides.CacheTTLMinutes == nil || *overrides.CacheTTLMinutes != 45 {
		t.Fatalf("expected cache TTL override 45, got %+v", overrides.CacheTTLMinutes)
	}
	if overrides.TelemetryEnabled == nil || !*overrides.TelemetryEnabled {
		t.Fatalf("expected telemetry override true, got %+v", overrides.TelemetryEnabled)
	}
	if overrides.ScansPerMinute == nil || *overrides.ScansPerMinute != 5 {
		t.Fatalf("expected scans-per-minute override 5, got %+v", overrides.ScansPerMinute)
	}
	if len(overrides.Nameservers) != 1 || overrides.Nameservers[0] != "9.9.9.9:53" {
		t.Fatalf("expected nameserver override, got %v", overrides.Nameservers)
	}
	if overrides.FailOn != "error" {
		t.Fatalf("expected fail-on override error, got %s", overrides.FailOn)
	}
}

func TestLoadDefaultOverridesEmpty(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Reset()

	overrides := loadDefaultOverrides()
	if overrides.TimeoutSecs != nil || overrides.CacheTTLMinutes != nil ||
		overrides.TelemetryEnabled != nil || overrides.ScansPerMinute != nil {
		t.Fatalf("expected no overrides without config values, got %+v", overrides)
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		*cliConfig = *newCLIConfig()
		resetScanFlagState(t)
	})

	*cliConfig = *newCLIConfig()
	resetScanFlagState(t)

	viper.Set("defaults.timeout_secs", 20)
	viper.Set("defaults.cache_ttl_minutes", 60)
	viper.Set("defaults.telemetry", true)
	viper.Set("defaults.scans_per_minute", 4)
	viper.Set("defaults.nameservers", []string{"1.1.1.1:53"})
	viper.Set("defaults.fail_on", "warning")

	applyConfigDefaults(scanCmd)

	if cliConfig.Defaults.TimeoutSecs != 20 || cliConfig.Scan.TimeoutSecs != 20 {
		t.Fatalf("expected timeout defaults to update to 20, got %d/%d", cliConfig.Defaults.TimeoutSecs, cliConfig.Scan.TimeoutSecs)
	}
	if cliConfig.Defaults.CacheTTLMinutes != 60 || cliConfig.Scan.CacheTTLMinutes != 60 {
		t.Fatalf("expected cache TTL defaults to update to 60, got %d/%d", cliConfig.Defaults.CacheTTLMinutes, cliConfig.Scan.CacheTTLMinutes)
	}
	if !cliConfig.Defaults.TelemetryEnabled || !cliConfig.Scan.TelemetryEnabled {
		t.Fatalf("expected telemetry defaults to be enabled")
	}
	if cliConfig.Defaults.ScansPerMinute != 4 || cliConfig.Scan.ScansPerMinute != 4 {
		t.Fatalf("expected scans-per-minute defaults to be 4, got %d/%d", cliConfig.Defaults.ScansPerMinute, cliConfig.Scan.ScansPerMinute)
	}
	if len(cliConfig.Scan.Nameservers) != 1 || cliConfig.Scan.Nameservers[0] != "1.1.1.1:53" {
		t.Fatalf("expected nameserver defaults to apply, got %v", cliConfig.Scan.Nameservers)
	}
	if got := scanCmd.Flags().Lookup("fail-on").Value.String(); got != "warning" {
		t.Fatalf("expected fail-on flag to be set by defaults, got %s", got)
	}
}

func TestApplyConfigDefaultsRespectsExplicitFlags(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		*cliConfig = *newCLIConfig()
		resetScanFlagState(t)
	})

	*cliConfig = *newCLIConfig()
	resetScanFlagState(t)

	if err := scanCmd.Flags().Set("timeout", "3"); err != nil {
		t.Fatalf("failed to set timeout flag: %v", err)
	}
	viper.Set("defaults.timeout_secs", 20)

	applyConfigDefaults(scanCmd)

	if cliConfig.Scan.TimeoutSecs != 3 {
		t.Fatalf("expected explicit timeout flag to win, got %d", cliConfig.Scan.TimeoutSecs)
	}
}

// resetScanFlagState simulates untouched CLI flags so defaults can apply.
func resetScanFlagState(t *testing.T) {
	t.Helper()
	for _, name := range []string{"timeout", "cache-ttl", "telemetry", "scans-per-minute", "nameservers", "probe-timeout", "fail-on"} {
		flag := scanCmd.Flags().Lookup(name)
		if flag == nil {
			t.Fatalf("scan command is missing flag %s", name)
		}
		flag.Changed = false
		if name == "fail-on" {
			_ = flag.Value.Set("")
		}
	}
}
