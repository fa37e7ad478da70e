package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docbridge",
	Short: "Query and synchronize document stores through model descriptors",
	Long: "docbridge runs filters against a document store and keeps its collections and indexes " +
		"in line with the declared models.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().String("models", "", "Path to a YAML or JSON models file")
	rootCmd.PersistentFlags().String("store-type", "", "Store type override (mongodb, mysql, redis, dynamodb, memory)")
	rootCmd.PersistentFlags().String("store-url", "", "Store connection URL override")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")

	// DOCBRIDGE_MODELS, DOCBRIDGE_STORE_URL, ... fill in flags left unset.
	v.SetEnvPrefix("DOCBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	setupCommands()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
