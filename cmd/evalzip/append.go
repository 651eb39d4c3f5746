package main

import (
	"github.com/spf13/afero"

	"github.com/tkrausz/evalzip/zip"
)

type appendCommand struct {
	Args struct {
		Archive string `positional-arg-name:"archive"`
		Name    string `positional-arg-name:"name"`
		File    string `positional-arg-name:"file"`
	} `positional-args:"true"`
}

func (c *appendCommand) Execute(_ []string) error {
	fs := afero.NewOsFs()
	data, err := afero.ReadFile(fs, c.Args.File)
	if err != nil {
		return err
	}

	appender, err := zip.OpenForAppendFs(fs, c.Args.Archive)
	if err != nil {
		return err
	}
	defer appender.Close()

	return appender.Append(c.Args.Name, data)
}
