package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/tkrausz/evalzip/zip"
)

type listCommand struct {
	Args struct {
		Archive string `positional-arg-name:"archive"`
	} `positional-args:"true"`
}

func (c *listCommand) Execute(_ []string) error {
	fs := afero.NewOsFs()
	scanner, file, err := zip.OpenForReadFs(fs, c.Args.Archive)
	if err != nil {
		return err
	}
	defer file.Close()

	names, err := scanner.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 8, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Compressed\tUncompressed\tName\t")
	fmt.Fprintln(w, "----------\t------------\t----\t")
	for _, name := range names {
		info, err := scanner.Stat(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n",
			humanize.Bytes(uint64(info.CompressedSize)), humanize.Bytes(uint64(info.UncompressedSize)), name)
	}
	return w.Flush()
}
