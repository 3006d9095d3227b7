package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for pdfaudit.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdfaudit",
		Short: "Link and table-layout checker for PDF documents",
		Long: `pdfaudit checks the links and tables of a PDF document.

Every http and https link annotation is validated once per distinct URL,
following redirects. Table cells whose content is wider than the cell are
reported as overflowing. Results are written as text, JSON or Markdown and
kept in a local history database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
