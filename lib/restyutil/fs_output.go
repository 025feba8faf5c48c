package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
)

type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) FilesystemOutput {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		panic(err)
	}
	return FilesystemOutput{directory: dir}
}

func (f FilesystemOutput) Write(id string, contents string) {
	path := filepath.Join(f.directory, id+".txt")
	err := os.WriteFile(path, []byte(contents), 0644)
	if err != nil {
		slog.Error("failed to write resty message dump", "path", path, "err", err)
	}
}
