package cli

import (
	"github.com/spf13/cobra"

	"github.com/elparko/CaseTracker/internal/mcptools"
	"github.com/elparko/CaseTracker/internal/version"
)

func NewMCPCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the case log to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}
			return mcptools.Serve(a.Cases, version.Version, deps.logger().Named("mcp"))
		},
	}
}
