// Command enginepool evaluates candidate chess moves on a pool of UCI engine
// processes sized against free memory.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
