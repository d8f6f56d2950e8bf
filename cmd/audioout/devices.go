// ABOUTME: devices command listing output devices of every available backend
// ABOUTME: Prints a table, JSON or YAML; remote sinks are found over mDNS
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audio/output"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type deviceView struct {
	Backend    string            `json:"backend" yaml:"backend"`
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Default    bool              `json:"default" yaml:"default"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

func (a *app) devicesCmd() *cobra.Command {
	var (
		format  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ls"},
		Short:   "List output devices",
		Example: "audioout devices\naudioout devices -b remote -o json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			factory := output.NewFactory(output.WithLogger(a.logger))
			devices, err := factory.OutputDevices(ctx)
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			if a.cfg.Backend != "" {
				devices = slices.DeleteFunc(devices, func(d audio.DeviceInfo) bool { return d.Backend != a.cfg.Backend })
			}

			views := make([]deviceView, 0, len(devices))
			for _, d := range devices {
				views = append(views, deviceView{Backend: d.Backend, ID: d.ID, Name: d.Name, Default: d.IsDefault, Properties: d.Properties})
			}
			return writeDevices(cmd.OutOrStdout(), format, views, factory.Backends())
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "give up enumerating after this long")
	return cmd
}

func writeDevices(w io.Writer, format string, devices []deviceView, backends []string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(devices)
	case "table":
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("BACKEND", "ID", "NAME", "DEFAULT", "DETAILS").
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return lipgloss.NewStyle().Bold(true).Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		for _, d := range devices {
			def := ""
			if d.Default {
				def = "*"
			}
			t.Row(d.Backend, d.ID, d.Name, def, details(d.Properties))
		}
		_, err := fmt.Fprintf(w, "%s\nBackends: %s\n", t.String(), strings.Join(backends, ", "))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func details(props map[string]string) string {
	parts := make([]string, 0, len(props))
	for _, k := range slices.Sorted(maps.Keys(props)) {
		parts = append(parts, k+"="+props[k])
	}
	return strings.Join(parts, " ")
}
