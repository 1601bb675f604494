// Command sfs manages sectorfs volume images stored on local disk, S3 or
// MinIO.
package main

import (
	"context"
	"log"
	"os"
)

func main() {
	app := newApp(os.Stdin, os.Stdout)
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
