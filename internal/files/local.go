package files

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type LocalFiles struct {
	config *LocalConfig
}

// newLocalFiles is the local handler used during development to write the
// artifacts to disk instead of a S3 bucket.
func newLocalFiles(config *LocalConfig) (LocalFiles, error) {
	if config.LocalRootPath == "" {
		return LocalFiles{}, errors.New("local root path is required")
	}

	return LocalFiles{config: config}, nil
}

func (l LocalFiles) WriteFile(file *File) error {
	folderDirectory := filepath.Join(l.config.LocalRootPath, filepath.Base(file.ID))
	filePath := filepath.Join(folderDirectory, filepath.Base(file.Name))

	if err := os.MkdirAll(folderDirectory, 0o750); err != nil {
		return errors.Wrap(err, "failed to make required directories")
	}

	if err := os.WriteFile(filePath, file.Data, 0o640); err != nil {
		return errors.Wrapf(err, "failed to write %s", file.Name)
	}

	return nil
}

func (l LocalFiles) WriteFiles(files ...*File) []error {
	return writeAll(l.WriteFile, files)
}

func (l LocalFiles) GetFile(id string, name string) ([]byte, error) {
	filePath := filepath.Join(l.config.LocalRootPath, filepath.Base(id), filepath.Base(name))
	data, err := os.ReadFile(filePath)

	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrFileNotFound, "cannot locate file %s", name)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to get the local file %s by id %s", name, id)
	}

	return data, nil
}
