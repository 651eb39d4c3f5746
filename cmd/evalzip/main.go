// Command evalzip is a small CLI front end over the zip package, useful
// for inspecting and exercising archives written by the incremental
// appender without pulling in a full journaling layer.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

var opts struct {
	List   listCommand   `command:"list" description:"list entries in an archive"`
	Read   readCommand   `command:"read" description:"print one entry's payload to stdout"`
	Append appendCommand `command:"append" description:"append a file to an archive, creating it if necessary"`
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
