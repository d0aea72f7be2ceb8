package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "reviewd",
	Short:         "Asynchronous code review service",
	Long:          "reviewd runs LLM-backed code reviews: an API server that accepts submissions and a worker that executes the review pipeline.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, workCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
