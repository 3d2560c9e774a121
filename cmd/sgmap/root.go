package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

// errPartialFailure marks a run that produced a report with failed regions or groups.
var errPartialFailure = errors.New("audit finished with failures")

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "sgmap",
		Short: "Map security groups to the services that use them",
		Long: `sgmap - Security Group Usage Mapper

sgmap lists the network interfaces governed by each security group,
infers which AWS services own them, and asks those services which of
their resources are members of the group.

Use it to find out what is actually using a security group before you
change or delete it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil && !errors.Is(err, errPartialFailure) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errPartialFailure):
		return exitPartial
	default:
		return exitFatal
	}
}

func init() {
	rootCmd.SetVersionTemplate(`sgmap {{.Version}} - Security Group Usage Mapper
`)
}
