// Package files stores submission artifacts: the code as submitted, the
// substituted program and the graded results.
package files

import (
	"sync"

	"github.com/pkg/errors"
)

type File struct {
	ID   string
	Name string
	Data []byte
}

type Files interface {
	WriteFile(file *File) error
	WriteFiles(files ...*File) []error
	GetFile(id string, name string) ([]byte, error)
}

var ErrFileNotFound = errors.New("file not found")

type LocalConfig struct {
	LocalRootPath string
}

type S3Config struct {
	BucketName string
	Region     string
}

type Config struct {
	ForceLocalMode bool
	Local          *LocalConfig
	S3             *S3Config
}

func NewFilesHandler(config *Config) (Files, error) {
	if config.ForceLocalMode || config.S3 == nil || config.S3.BucketName == "" {
		if config.Local == nil {
			return nil, errors.New("local files configuration is required in local mode")
		}

		return newLocalFiles(config.Local)
	}

	return newS3Files(config.S3)
}

// writeAll writes every file concurrently and collects the failures.
func writeAll(write func(file *File) error, files []*File) []error {
	wg := sync.WaitGroup{}

	var errs []error
	queue := make(chan error, len(files))

	for _, file := range files {
		wg.Add(1)

		go func(file *File) {
			defer wg.Done()

			if err := write(file); err != nil {
				queue <- err
			}
		}(file)
	}

	wg.Wait()
	close(queue)

	for err := range queue {
		errs = append(errs, err)
	}

	return errs
}
