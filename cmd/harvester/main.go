// Command harvester scrapes project records from the MahaRERA public registry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// @title MahaRERA Project Registry API
// @version 1.0
// @description On-demand scraping of registered real-estate projects from the MahaRERA public registry.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
