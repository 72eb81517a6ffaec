// Command mediaqd runs the mediaq server and talks to it from the shell.
//
//	mediaqd serve --addr :8080 --transcriber whisper-cli --detector yolo-cli
//	mediaqd submit --kind audio --file talk.wav
//	mediaqd watch job_01h...
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
