package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var opts globalOptions

	rootCmd := &cobra.Command{
		Use:   "moodify",
		Short: "Command line client for the moodify gateway",
		Long: `moodify signs in to a moodify gateway and runs chat and image
requests through it. The session token is kept in the user config
directory between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		loginCmd(&opts),
		verifyCmd(&opts),
		logoutCmd(&opts),
		chatCmd(&opts),
		imageCmd(&opts),
	)

	if err := rootCmd.Execute(); err != nil {
		errorMsg("%s", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
