package main

import (
	"os"

	"github.com/spf13/afero"

	"github.com/tkrausz/evalzip/zip"
)

type readCommand struct {
	Args struct {
		Archive string `positional-arg-name:"archive"`
		Name    string `positional-arg-name:"name"`
	} `positional-args:"true"`
}

func (c *readCommand) Execute(_ []string) error {
	fs := afero.NewOsFs()
	scanner, file, err := zip.OpenForReadFs(fs, c.Args.Archive)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := scanner.Read(c.Args.Name)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
