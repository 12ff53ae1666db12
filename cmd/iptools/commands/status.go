// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/iptools-project/iptools/cmd/iptools/cli"
	"github.com/iptools-project/iptools/lib/cluster"
	"github.com/iptools-project/iptools/lib/profile"
)

func statusCommand(env *environment) *cli.Command {
	var (
		configPath     string
		descriptorPath string
	)

	return &cli.Command{
		Name:    "status",
		Summary: "Show whether the recorded processes are running",
		Description: `Print the profile and every process recorded in the descriptor with
its state: running, exited, or reused (the PID now belongs to another
process). Exits 1 when any recorded process is not running.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			configFlag(flagSet, &configPath)
			descriptorFlag(flagSet, &descriptorPath)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			path, err := env.descriptorPath(descriptorPath, cfg)
			if err != nil {
				return err
			}
			d, err := profile.ReadDescriptor(path)
			if err != nil {
				return err
			}

			statuses := env.inspector.Inspect(d)
			renderStatus(env.stdout, colorProfile(env.stdout), d, statuses)

			for _, status := range statuses {
				if status.State != cluster.StateRunning {
					return &cli.ExitError{Code: 1}
				}
			}
			return nil
		},
	}
}

// colorProfile returns the color profile of the terminal behind w, or
// Ascii when w is not a terminal.
func colorProfile(w io.Writer) termenv.Profile {
	file, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

func renderStatus(w io.Writer, colors termenv.Profile, d *profile.Descriptor, statuses []cluster.ProcessStatus) {
	renderer := lipgloss.NewRenderer(w, termenv.WithProfile(colors))
	renderer.SetColorProfile(colors)

	label := renderer.NewStyle().Bold(true)
	stateStyles := map[cluster.State]lipgloss.Style{
		cluster.StateRunning: renderer.NewStyle().Foreground(lipgloss.Color("2")),
		cluster.StateExited:  renderer.NewStyle().Foreground(lipgloss.Color("8")),
		cluster.StateReused:  renderer.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
	}

	fmt.Fprintf(w, "%s %s\n", label.Render("profile:"), d.Profile)
	fmt.Fprintf(w, "%s %s\n\n", label.Render("directory:"), d.ProfileDirectory)

	headers := []string{"ROLE", "PID", "HOST", "STATE"}
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		host := status.Host
		if host == "" {
			host = "-"
		}
		rows = append(rows, []string{string(status.Role), strconv.Itoa(status.PID), host, string(status.State)})
	}

	widths := make([]int, len(headers))
	for column, header := range headers {
		widths[column] = ansi.StringWidth(header)
		for _, row := range rows {
			widths[column] = max(widths[column], ansi.StringWidth(row[column]))
		}
	}

	cell := func(column int, text string, style lipgloss.Style) string {
		if column == len(headers)-1 {
			return style.Render(text)
		}
		return style.Width(widths[column] + 2).Render(text)
	}

	header := ""
	for column, text := range headers {
		header += cell(column, text, label)
	}
	fmt.Fprintln(w, header)

	plain := renderer.NewStyle()
	for index, row := range rows {
		line := ""
		for column, text := range row {
			style := plain
			if column == len(headers)-1 {
				style = stateStyles[statuses[index].State]
			}
			line += cell(column, text, style)
		}
		fmt.Fprintln(w, line)
	}
}
