// ABOUTME: config command for inspecting and creating the configuration file
// ABOUTME: Shows resolved settings, search paths and writes a default file
package main

import (
	"fmt"
	"strings"

	"github.com/Resonate-Protocol/audioout/internal/config"
	"github.com/spf13/cobra"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
		Args:  cobra.NoArgs,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Marshal(a.cfg)
			if err != nil {
				return err
			}
			if used := a.loader.FileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "List the directories searched for audioout.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dirs, err := config.SearchDirs()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(dirs, "\n"))
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string
			if len(args) == 1 {
				target = args[0]
			} else {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				target = p
			}
			if err := config.WriteDefault(target); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Wrote config file to:", target)
			return err
		},
	}

	cmd.AddCommand(showCmd, pathCmd, initCmd)
	return cmd
}
