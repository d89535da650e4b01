// Command blinkdb-server starts the BlinkDB storage engine behind a
// Redis-compatible TCP adapter and an admin HTTP surface.
package main

import (
	"os"

	"blinkdb/bootstrap"
)

func main() {
	os.Exit(bootstrap.Run(os.Args[1:]))
}
