package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/settings"
)

func (a *App) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and write configuration",
	}

	var format string
	show := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration",
		Args:        cobra.NoArgs,
		Annotations: offline(),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.Encode(settings.Format(format), a.cfg)
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	}
	show.Flags().StringVar(&format, "format", string(settings.FormatYAML), "yaml or toml")

	schema := &cobra.Command{
		Use:         "schema",
		Short:       "Print the JSON schema of the config file",
		Args:        cobra.NoArgs,
		Annotations: offline(),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, string(data))
			return err
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init <path>",
		Short:       "Write the effective configuration to a file",
		Args:        cobra.ExactArgs(1),
		Annotations: offline(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil && !force {
				return fmt.Errorf("%s exists, pass --force to overwrite", args[0])
			}
			if err := settings.Save(args[0], a.cfg); err != nil {
				return err
			}
			a.toast.Success("設定ファイルを作成しました", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	validate := &cobra.Command{
		Use:         "validate",
		Short:       "Check the configuration and exit",
		Args:        cobra.NoArgs,
		Annotations: offline(),
		RunE: func(cmd *cobra.Command, args []string) error {
			// setup already rejected invalid configuration.
			a.toast.Success("設定は有効です", a.flags.configPath)
			return nil
		},
	}

	cmd.AddCommand(show, schema, initCmd, validate)
	return cmd
}
