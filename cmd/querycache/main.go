// Command querycache inspects and maintains a query cache deployment: it
// prints the key index, flushes entity types and computes cache keys for
// descriptor files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
