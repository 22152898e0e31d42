package main

import (
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/gameward/internal/errx"
	"github.com/jingkaihe/gameward/pkg/api"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect gameward configuration",
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration as YAML with passwords redacted",
	Args:  cobra.NoArgs,
	RunE:  runConfigPrint,
}

func init() {
	configPrintCmd.Flags().Bool("validate", false, "Fail if the configuration is invalid")
	configCmd.AddCommand(configPrintCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigPrint(cmd *cobra.Command, args []string) error {
	validate, _ := cmd.Flags().GetBool("validate")

	cfg, err := decodeConfig()
	if err != nil {
		return err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return writeConfigYAML(cmd.OutOrStdout(), cfg)
}

func writeConfigYAML(w io.Writer, cfg *api.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return errx.Wrap(ErrEncodeConfig, err)
	}
	if err := enc.Close(); err != nil {
		return errx.Wrap(ErrEncodeConfig, err)
	}
	return nil
}
