package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string
var noColor bool

// logger starts as a nop so commands invoked outside Execute (tests,
// embedding) never hit a nil logger; PersistentPreRunE swaps in the real one.
var logger = zap.NewNop().Sugar()

var rootCmd = &cobra.Command{
	Use:   "posture",
	Short: "Domain security posture scanner (DNS, email auth, certificates, registration, headers)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init config
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath("$HOME")
			viper.SetConfigName(".posture-cli")
			viper.SetConfigType("yaml")
		}

		_ = viper.ReadInConfig()

		if noColor {
			color.NoColor = true
		}

		// init logger; quiet by default so probe output stays readable
		verbose, _ := cmd.Flags().GetBool("verbose")
		zapCfg := zap.NewProductionConfig()
		if !verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		}
		l, err := zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l.Sugar()

		applyConfigDefaults(cmd)

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.posture-cli.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	// add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(probesCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}
