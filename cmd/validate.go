package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

type inputs struct {
	frameworks []string
	libraries  []string
	headers    []string
	output     string
}

func (in *inputs) validate() error {
	if len(in.frameworks) == 0 && len(in.libraries) == 0 {
		return errors.New("at least one framework or one library must be provided")
	}
	if len(in.frameworks) != 0 && len(in.libraries) != 0 {
		return errors.New("frameworks and libraries cannot be mixed")
	}
	if len(in.headers) > len(in.libraries) {
		return errors.New("there should not be more headers provided than libraries")
	}

	for _, p := range in.frameworks {
		if !isDir(p) {
			return fmt.Errorf("unable to find framework at path: %s", p)
		}
		if filepath.Ext(p) != ".framework" {
			return fmt.Errorf("the path does not point to a valid framework: %s", p)
		}
	}
	for _, p := range in.libraries {
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			return fmt.Errorf("unable to find library at path: %s", p)
		}
		if !slices.Contains([]string{".a", ".dylib"}, filepath.Ext(p)) {
			return fmt.Errorf("the path does not point to a valid library: %s", p)
		}
	}
	for _, p := range in.headers {
		if !isDir(p) {
			return fmt.Errorf("unable to find headers folder at path: %s", p)
		}
	}

	if in.output == "" {
		return errors.New("-output flag is required")
	}
	if filepath.Ext(in.output) != ".xcframework" {
		return errors.New("the output path must end with the extension 'xcframework'")
	}
	if _, err := os.Lstat(in.output); err == nil {
		return fmt.Errorf("the destination already exists at path: %s", in.output)
	}
	return nil
}

// headersOf returns the headers given for the i-th library, if any.
func (in *inputs) headersOf(i int) string {
	if i < len(in.headers) {
		return in.headers[i]
	}
	return ""
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
