// Command itemmatch-eval replays a lost-and-found dataset through the matching engine and
// reports how well lost reports are paired with their found counterparts.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
