package zip

import (
	"os"

	"github.com/spf13/afero"
)

// OpenForAppendFs opens (creating if necessary) name on fs and returns an
// Appender over it, the afero-backed counterpart to OpenForAppend. Closing
// the returned Appender closes the underlying afero.File.
func OpenForAppendFs(fs afero.Fs, name string) (*Appender, error) {
	file, err := fs.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, newIOErr("OpenForAppend", err)
	}
	appender, err := OpenForAppend(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return appender, nil
}

// OpenForReadFs opens name on fs read-only and returns a Scanner over it.
// The caller is responsible for closing the returned afero.File once
// finished with the Scanner.
func OpenForReadFs(fs afero.Fs, name string) (*Scanner, afero.File, error) {
	file, err := fs.Open(name)
	if err != nil {
		return nil, nil, newIOErr("OpenForRead", err)
	}
	scanner, err := OpenForRead(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return scanner, file, nil
}
