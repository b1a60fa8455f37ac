package testutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

// CleanDir removes everything in dirname except the entries named in keeps.
// A missing directory is already clean.
func CleanDir(dirname string, keeps []string) error {
	fis, err := ioutil.ReadDir(dirname)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	keep := map[string]struct{}{}
	for _, k := range keeps {
		keep[k] = struct{}{}
	}

	for _, fi := range fis {
		if _, ok := keep[fi.Name()]; ok {
			continue
		}
		err = os.RemoveAll(filepath.Join(dirname, fi.Name()))
		if err != nil {
			return err
		}
	}
	return nil
}
