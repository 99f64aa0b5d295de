package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cifra "github.com/UriL0x/crypto-proyecto"
	"github.com/UriL0x/crypto-proyecto/audit"
	"github.com/UriL0x/crypto-proyecto/persist"
)

var (
	cfgFile     string
	basePath    string
	sandboxRoot string
	auditLogger audit.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cifra",
	Short: "Sandboxed file encryption with an escrowed master key",
	Long: `A sandboxed file-encryption utility. Files are encrypted and decrypted
strictly within a designated directory tree; the master key is never stored
in plaintext, only as an encrypted escrow record recoverable with the
passphrase. The passphrase is read from the CIFRA_PASSPHRASE environment
variable or an interactive prompt, never from a command-line argument.`,
	PersistentPreRunE: initializeLogging,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if auditLogger != nil {
			return auditLogger.Close()
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Accept snake_case spellings of any flag.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cifra.yaml)")
	rootCmd.PersistentFlags().StringVarP(&basePath, "base-path", "p", "", "project root holding the sandbox and escrow directories")
	rootCmd.PersistentFlags().StringVar(&sandboxRoot, "sandbox", "", "sandbox root (default <base-path>/sandbox)")
	rootCmd.PersistentFlags().String("store-type", "", "escrow storage backend (filesystem, s3)")
	rootCmd.PersistentFlags().Bool("mlock", false, "lock process memory to keep key material out of swap")

	bindFlagOrPanic("engine.base_path", "base-path")
	bindFlagOrPanic("engine.sandbox", "sandbox")
	bindFlagOrPanic("engine.store_type", "store-type")
	bindFlagOrPanic("engine.mlock", "mlock")

	// Audit flags
	rootCmd.PersistentFlags().Bool("audit", false, "enable audit logging")
	rootCmd.PersistentFlags().String("audit-type", "", "audit logger type (file, syslog)")
	rootCmd.PersistentFlags().String("audit-file", "", "audit log file path")

	bindFlagOrPanic("audit.enabled", "audit")
	bindFlagOrPanic("audit.type", "audit-type")
	bindFlagOrPanic("audit.options.file_path", "audit-file")

	// S3 flags (for the s3 escrow backend)
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "use SSL for S3 connections")

	bindFlagOrPanic("s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("s3.region", "s3-region")
	bindFlagOrPanic("s3.bucket", "s3-bucket")
	bindFlagOrPanic("s3.key_prefix", "s3-prefix")
	bindFlagOrPanic("s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("s3.use_ssl", "s3-use-ssl")
}

func bindFlagOrPanic(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Panicf("failed to bind flag %s: %v", flag, err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".cifra")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("CIFRA")
	viper.AutomaticEnv()

	// Config file is optional.
	_ = viper.ReadInConfig()
}

func initializeLogging(cmd *cobra.Command, args []string) error {
	if !viper.GetBool("audit.enabled") {
		auditLogger = audit.NewNoOpLogger()
		return nil
	}

	config := &audit.Config{
		Enabled: true,
		Type:    audit.ConfigType(viper.GetString("audit.type")),
		Options: map[string]interface{}{},
	}
	if filePath := viper.GetString("audit.options.file_path"); filePath != "" {
		config.Options["file_path"] = filePath
	} else if config.Type == audit.FileAuditType {
		config.Options["file_path"] = filepath.Join(resolveBasePath(), "execution.log")
	}

	logger, err := audit.NewLogger(config)
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	auditLogger = logger
	return nil
}

func resolveBasePath() string {
	if base := viper.GetString("engine.base_path"); base != "" {
		return base
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func buildStore() (persist.Store, error) {
	storeType := persist.StoreType(viper.GetString("engine.store_type"))
	if storeType == "" {
		storeType = persist.StoreTypeFileSystem
	}

	switch storeType {
	case persist.StoreTypeFileSystem:
		return persist.NewFileSystemStore(resolveBasePath())
	case persist.StoreTypeS3:
		return persist.NewS3Store(persist.S3Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			UseSSL:          viper.GetBool("s3.use_ssl"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			KeyPrefix:       viper.GetString("s3.key_prefix"),
		})
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}

// newEngine wires up the engine the way every command needs it. passphrase
// may be nil for commands that never unlock the escrow (status, test).
func newEngine(passphrase []byte) (*cifra.Engine, error) {
	store, err := buildStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	options := cifra.Options{
		BasePath:             resolveBasePath(),
		SandboxRoot:          viper.GetString("engine.sandbox"),
		DerivationPassphrase: passphrase,
		EnableMemoryLock:     viper.GetBool("engine.mlock"),
	}

	engine, err := cifra.NewWithStore(options, store, auditLogger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return engine, nil
}
