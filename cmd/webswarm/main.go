// webswarm drives several LLM-controlled browsers against one web
// application and collects their findings into a single report.
//
// Usage:
//
//	webswarm run [--url=<url>] [--slots=5] [--catalog=<tasks.yaml>]
//	webswarm explore [--url=<url>] [--report=<path>]
//	webswarm example [--choice=1|2|0]
//	webswarm history [run-id]
//	webswarm serve [--addr=:8092]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
