package toolchain_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gui17aume/xcframework-now/pkg/toolchain"
)

type call struct {
	Dir  string
	Name string
	Args []string
}

type fakeRunner struct {
	calls  []call
	result toolchain.Result
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (toolchain.Result, error) {
	f.calls = append(f.calls, call{Dir: dir, Name: name, Args: args})
	return f.result, nil
}

func TestSetBuildVersion(t *testing.T) {
	r := &fakeRunner{}
	err := toolchain.SetBuildVersion(context.Background(), r, "/tmp/libfoo.dylib", "arm64", 7, "13.0", "16.0")
	fatalIf(t, err)

	want := []call{{
		Name: "vtool",
		Args: []string{"-arch", "arm64", "-set-build-version", "7", "13.0", "16.0", "-replace", "-output", "/tmp/libfoo.dylib", "/tmp/libfoo.dylib"},
	}}
	if diff := cmp.Diff(want, r.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestCreateXCFramework(t *testing.T) {
	r := &fakeRunner{}
	err := toolchain.CreateXCFramework(context.Background(), r, "/tmp/work",
		[]string{"-library", "ios/libfoo.a", "-headers", "include"}, "/out/Foo.xcframework")
	fatalIf(t, err)

	want := []call{{
		Dir:  "/tmp/work",
		Name: "xcodebuild",
		Args: []string{"-create-xcframework", "-library", "ios/libfoo.a", "-headers", "include", "-output", "/out/Foo.xcframework"},
	}}
	if diff := cmp.Diff(want, r.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestExitError(t *testing.T) {
	r := &fakeRunner{result: toolchain.Result{Status: 70, Output: "error: bad input\n"}}
	err := toolchain.CreateXCFramework(context.Background(), r, "", nil, "out.xcframework")

	var exitErr *toolchain.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("want ExitError, got %v", err)
	}
	if exitErr.Status != 70 {
		t.Errorf("want status 70, got %d", exitErr.Status)
	}
	if !strings.Contains(err.Error(), "bad input") {
		t.Errorf("output missing from %q", err.Error())
	}
}

func TestArchs(t *testing.T) {
	r := &fakeRunner{result: toolchain.Result{Output: "warning: something\narmv7 arm64  x86_64\n\n"}}
	got, err := toolchain.Archs(context.Background(), r, "libfoo.a")
	fatalIf(t, err)
	if diff := cmp.Diff([]string{"armv7", "arm64", "x86_64"}, got); diff != "" {
		t.Errorf("archs (-want +got):\n%s", diff)
	}
}

func TestIsDynamic(t *testing.T) {
	for status, want := range map[int]bool{0: true, 1: false} {
		r := &fakeRunner{result: toolchain.Result{Status: status}}
		got, err := toolchain.IsDynamic(context.Background(), r, "libfoo.a")
		fatalIf(t, err)
		if got != want {
			t.Errorf("status %d: want %v, got %v", status, want, got)
		}
	}
}

func TestExec(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh")
	}

	res, err := toolchain.Exec{}.Run(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2; exit 3")
	fatalIf(t, err)
	if res.Status != 3 {
		t.Errorf("want status 3, got %d", res.Status)
	}
	if !strings.Contains(res.Output, "out") || !strings.Contains(res.Output, "err") {
		t.Errorf("want combined output, got %q", res.Output)
	}

	_, err = toolchain.Exec{}.Run(context.Background(), "", "xcframework-now-no-such-tool")
	if err == nil {
		t.Errorf("want an error for a missing tool")
	}
	if toolchain.LookPath("xcframework-now-no-such-tool") {
		t.Errorf("LookPath found a missing tool")
	}
}

func fatalIf(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
