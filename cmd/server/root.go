package main

import (
	"github.com/spf13/cobra"
)

const appName = "resume-screener"

var rootCmd = &cobra.Command{
	Use:          appName,
	Short:        "Ranks resumes against a job description and answers questions about them",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging (overrides LOG_FORMAT)")
}
