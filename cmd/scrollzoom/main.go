package main

import (
	"os"
	"runtime"

	"github.com/offlinefirst/scrollzoom/internal/cmd"
)

// Event taps and the run loop belong to the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	root := cmd.NewRootCommand()
	if err := root.Execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
