package cli

import (
	"fmt"

	"github.com/apkforge/apkforge/pkg/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default apkforge.config.json in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault(".")
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Wrote %s", path))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("📦 apkforge v%s\n", version)
		},
	}
}
