package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ngld/assetpipe/pkg/tasks"
)

var (
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	aliasStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	descStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all entry points and tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}

		renderList(cmd.OutOrStdout(), env.registry)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

type listEntry struct {
	name    string
	aliases []string
	desc    string
}

func renderList(out io.Writer, registry *tasks.Registry) {
	entrypoints := make([]listEntry, 0)
	for _, ep := range registry.Entrypoints() {
		entrypoints = append(entrypoints, listEntry{name: ep.Name, aliases: ep.Aliases, desc: ep.Desc})
	}

	taskList := make([]listEntry, 0)
	for _, task := range registry.Tasks() {
		if !task.Hidden {
			taskList = append(taskList, listEntry{name: task.Short, desc: task.Desc})
		}
	}

	width := 0
	for _, entry := range append(entrypoints, taskList...) {
		if len(entry.name) > width {
			width = len(entry.name)
		}
	}

	fmt.Fprintln(out, headingStyle.Render("Entry points:"))
	for _, entry := range entrypoints {
		fmt.Fprintln(out, renderEntry(entry, width))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, headingStyle.Render("Tasks:"))
	for _, entry := range taskList {
		fmt.Fprintln(out, renderEntry(entry, width))
	}
}

func renderEntry(entry listEntry, width int) string {
	line := " * " + nameStyle.Width(width+2).Render(entry.name) + descStyle.Render(entry.desc)
	if len(entry.aliases) > 0 {
		line += " " + aliasStyle.Render("(alias "+strings.Join(entry.aliases, ", ")+")")
	}
	return line
}
