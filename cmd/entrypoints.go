package cmd

import (
	"github.com/spf13/cobra"
)

var entrypointCmds = []struct {
	name    string
	use     string
	aliases []string
	short   string
}{
	{name: "default", use: "dev", aliases: []string{"default"}, short: "Development build, then watch and serve the output"},
	{name: "backend", use: "backend", short: "Development build without source maps and without watching"},
	{name: "build", use: "build", aliases: []string{"prod"}, short: "Production build"},
	{name: "cache", use: "cache", short: "Add content hashes to asset names and rewrite references"},
	{name: "zip", use: "zip", short: "Pack the output folder into an archive"},
}

var runCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a task or entry point by name",
	Long:  `Runs a built-in task, a built-in entry point or an entry point declared in pipeline.star.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd, args[0])
	},
}

func init() {
	for _, ep := range entrypointCmds {
		name := ep.name
		rootCmd.AddCommand(&cobra.Command{
			Use:     ep.use,
			Aliases: ep.aliases,
			Short:   ep.short,
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runNode(cmd, name)
			},
		})
	}

	rootCmd.AddCommand(runCmd)
}
