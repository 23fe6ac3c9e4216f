package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gui17aume/xcframework-now/pkg/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		set     map[string]any
		want    config.Config
		wantErr bool
	}{
		{
			name: "defaults",
			want: config.Config{TmpDir: "/tmp/x", Builder: "auto", Inspector: "native", Jobs: runtime.NumCPU()},
		},
		{
			name: "file",
			yaml: "builder: native\ninspector: tools\njobs: 3\nzip: true\n",
			want: config.Config{TmpDir: "/tmp/x", Builder: "native", Inspector: "tools", Jobs: 3, Zip: true},
		},
		{
			name: "env overrides file",
			yaml: "builder: native\njobs: 3\n",
			env:  map[string]string{"XCFN_BUILDER": "xcodebuild", "XCFN_VERBOSE": "true"},
			want: config.Config{TmpDir: "/tmp/x", Builder: "xcodebuild", Inspector: "native", Jobs: 3, Verbose: true},
		},
		{
			name: "flags override env",
			env:  map[string]string{"XCFN_JOBS": "2"},
			set:  map[string]any{"jobs": 8},
			want: config.Config{TmpDir: "/tmp/x", Builder: "auto", Inspector: "native", Jobs: 8},
		},
		{
			name:    "unknown builder",
			yaml:    "builder: make\n",
			wantErr: true,
		},
		{
			name:    "unknown inspector",
			env:     map[string]string{"XCFN_INSPECTOR": "nm"},
			wantErr: true,
		},
		{
			name:    "negative jobs",
			set:     map[string]any{"jobs": -1},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv("XCFN_TMP_DIR", "/tmp/x")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			file := ""
			if tt.yaml != "" {
				file = filepath.Join(t.TempDir(), "config.yaml")
				fatalIf(t, os.WriteFile(file, []byte(tt.yaml), 0644))
			}

			v := config.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			got, err := config.Load(v, file)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want an error")
				}
				return
			}
			fatalIf(t, err)
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("config (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadDefaultFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	def, err := config.DefaultFile()
	fatalIf(t, err)
	fatalIf(t, os.MkdirAll(filepath.Dir(def), 0755))
	fatalIf(t, os.WriteFile(def, []byte("builder: native\n"), 0644))

	got, err := config.Load(config.New(), "")
	fatalIf(t, err)
	if got.Builder != config.BuilderNative {
		t.Errorf("want builder from %s, got %s", def, got.Builder)
	}

	if _, err := config.Load(config.New(), filepath.Join(home, "missing.yaml")); err == nil {
		t.Errorf("want an error for a missing explicit file")
	}
}

func fatalIf(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
