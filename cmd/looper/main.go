package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(exit(rootCmd.Execute()))
}

// exit flushes the logger and maps err to the process exit status.
// PersistentPostRun is skipped when a command fails, so the flush lives here.
func exit(err error) int {
	_ = logger.Sync()
	if err == nil {
		return 0
	}
	var h *haltError
	if errors.As(err, &h) {
		return h.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}
