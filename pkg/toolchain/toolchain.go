// Package toolchain runs the Xcode command line tools used when packaging.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/apex/log"
)

// Result is the exit status and the combined stdout and stderr of a command.
type Result struct {
	Status int
	Output string
}

// Runner runs name with args in dir. A command that starts and exits with a
// non-zero status is not an error; its status is reported in Result.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// Exec runs commands with os/exec.
type Exec struct{}

var _ Runner = Exec{}

func (Exec) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	log.WithField("dir", dir).Debugf("%s %s", name, strings.Join(args, " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{Status: exitErr.ExitCode(), Output: string(out)}, nil
		}
		return Result{}, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return Result{Output: string(out)}, nil
}

// ExitError is returned by the wrappers of this package when a tool exits
// with a non-zero status.
type ExitError struct {
	Name   string
	Status int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.Status, strings.TrimSpace(e.Output))
}

// LookPath reports whether the named tool can be found in PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func run(ctx context.Context, r Runner, dir, name string, args ...string) (string, error) {
	res, err := r.Run(ctx, dir, name, args...)
	if err != nil {
		return "", err
	}
	if res.Status != 0 {
		return "", &ExitError{Name: name, Status: res.Status, Output: res.Output}
	}
	return res.Output, nil
}

// SetBuildVersion replaces the build version of the arch slice of path in place.
func SetBuildVersion(ctx context.Context, r Runner, path, arch string, platform int, minos, sdk string) error {
	_, err := run(ctx, r, "", "vtool",
		"-arch", arch,
		"-set-build-version", fmt.Sprint(platform), minos, sdk,
		"-replace", "-output", path, path)
	return err
}

// CreateXCFramework runs xcodebuild -create-xcframework in dir. inputs are
// the -framework, -library and -headers arguments.
func CreateXCFramework(ctx context.Context, r Runner, dir string, inputs []string, output string) error {
	args := append([]string{"-create-xcframework"}, inputs...)
	args = append(args, "-output", output)
	_, err := run(ctx, r, dir, "xcodebuild", args...)
	return err
}

// Archs runs lipo -archs and returns the names of the last output line.
func Archs(ctx context.Context, r Runner, path string) ([]string, error) {
	out, err := run(ctx, r, "", "lipo", "-archs", path)
	if err != nil {
		return nil, err
	}

	last := ""
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			last = line
		}
	}
	return strings.Fields(last), nil
}

// IsDynamic reports whether vtool accepts path, which it does for dynamic
// images only.
func IsDynamic(ctx context.Context, r Runner, path string) (bool, error) {
	res, err := r.Run(ctx, "", "vtool", "-show", path)
	if err != nil {
		return false, err
	}
	return res.Status == 0, nil
}

// ShowBuild returns the vtool -show-build output for the arch slice of path.
func ShowBuild(ctx context.Context, r Runner, path, arch string) (string, error) {
	return run(ctx, r, "", "vtool", "-show-build", "-arch", arch, path)
}

// LoadCommands returns the otool -l output for the arch slice of path.
func LoadCommands(ctx context.Context, r Runner, path, arch string) (string, error) {
	return run(ctx, r, "", "otool", "-l", "-arch", arch, path)
}
