package lipo

import (
	"fmt"
	"slices"

	"github.com/gui17aume/xcframework-now/pkg/lmacho"
)

// extract keeps the objects whose architecture is one of names.
func extract[T lmacho.Object](objects []T, names ...string) []T {
	return slices.DeleteFunc(slices.Clone(objects), func(o T) bool {
		return !slices.Contains(names, o.CPUString())
	})
}

// remove drops the objects whose architecture is one of names.
func remove[T lmacho.Object](objects []T, names ...string) []T {
	return slices.DeleteFunc(slices.Clone(objects), func(o T) bool {
		return slices.Contains(names, o.CPUString())
	})
}

func cpuStrings[T lmacho.Object](objects []T) []string {
	names := make([]string, len(objects))
	for i, o := range objects {
		names[i] = o.CPUString()
	}
	return names
}

// missing returns the first of want that is not in have.
func missing(have []string, want []string) (string, bool) {
	for _, v := range want {
		if !slices.Contains(have, v) {
			return v, true
		}
	}
	return "", false
}

func validateInputArches(arches []string) error {
	if len(arches) == 0 {
		return fmt.Errorf("no architecture specified")
	}

	for i, arch := range arches {
		if !lmacho.IsSupportedCpu(arch) {
			return fmt.Errorf(unsupportedArchFmt, arch)
		}
		if slices.Contains(arches[:i], arch) {
			return fmt.Errorf("architecture %s specified multiple times", arch)
		}
	}
	return nil
}
