// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docvault",
	Short: "DocVault is a group-based document vault",
	Long: `DocVault stores documents behind group-based access levels. Users see
the documents they uploaded plus the documents shared with their groups;
uploads are text-extracted so documents are searchable by content.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
