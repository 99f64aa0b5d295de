package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long:  `Print the merged configuration (flags, config file, environment) as YAML. Secrets are never part of the configuration and never appear here.`,
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	settings := map[string]interface{}{}
	if engine := viper.Sub("engine"); engine != nil {
		settings["engine"] = engine.AllSettings()
	}
	if auditSection := viper.Sub("audit"); auditSection != nil {
		settings["audit"] = auditSection.AllSettings()
	}
	// Credentials stay out of the dump.
	if s3 := viper.Sub("s3"); s3 != nil {
		s3Settings := s3.AllSettings()
		delete(s3Settings, "access_key_id")
		delete(s3Settings, "secret_access_key")
		settings["s3"] = s3Settings
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	fmt.Print(string(data))
	return nil
}
