package dataset

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Files describes an images/labels IDX file pair.
type Files struct {
	Images string
	Labels string
}

// Split prefixes as distributed upstream.
const (
	TrainPrefix = "train"
	TestPrefix  = "t10k"
)

// DiscoverSplit resolves the file pair for one split beneath dir, accepting
// both plain and gzip-compressed names.
func DiscoverSplit(dir, prefix string) (Files, error) {
	images, err := resolve(dir, prefix+"-images-idx3-ubyte")
	if err != nil {
		return Files{}, err
	}
	labels, err := resolve(dir, prefix+"-labels-idx1-ubyte")
	if err != nil {
		return Files{}, err
	}
	return Files{Images: images, Labels: labels}, nil
}

// Load reads the train and test splits beneath dir.
func Load(dir string) (train, test *Set, err error) {
	trainFiles, err := DiscoverSplit(dir, TrainPrefix)
	if err != nil {
		return nil, nil, err
	}
	testFiles, err := DiscoverSplit(dir, TestPrefix)
	if err != nil {
		return nil, nil, err
	}
	if train, err = LoadSet(trainFiles); err != nil {
		return nil, nil, err
	}
	if test, err = LoadSet(testFiles); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func resolve(dir, name string) (string, error) {
	for _, candidate := range []string{name, name + ".gz"} {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Errorf("missing %s(.gz) under %s", name, dir)
}
