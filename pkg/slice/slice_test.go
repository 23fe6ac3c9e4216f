package slice_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gui17aume/xcframework-now/pkg/slice"
)

const otoolOutput = `libfoo.a(foo.o):
Load command 0
      cmd LC_SEGMENT_64
  cmdsize 232
  segname
   vmaddr 0x0000000000000000
Load command 1
      cmd LC_VERSION_MIN_IPHONEOS
  cmdsize 16
  version 12.0
      sdk 16.2
Load command 2
      cmd LC_SYMTAB
  cmdsize 24
`

const vtoolOutput = `libfoo.dylib (architecture arm64):
Load command 9
      cmd LC_BUILD_VERSION
  cmdsize 32
 platform IOSSIMULATOR
    minos 14.0
      sdk 17.0
   ntools 1
     tool LD
  version 902.11
`

func TestParseDescription(t *testing.T) {
	tests := []struct {
		name   string
		arch   string
		text   string
		want   slice.Slice
		wantOK bool
	}{
		{
			name:   "otool device",
			arch:   "arm64",
			text:   otoolOutput,
			want:   slice.Slice{Arch: "arm64", Destination: slice.IOS, Version: "12.0", SDK: "16.2"},
			wantOK: true,
		},
		{
			name:   "otool simulator",
			arch:   "x86_64",
			text:   otoolOutput,
			want:   slice.Slice{Arch: "x86_64", Destination: slice.IOSSimulator, Version: "12.0", SDK: "16.2"},
			wantOK: true,
		},
		{
			name:   "vtool build version",
			arch:   "arm64",
			text:   vtoolOutput,
			want:   slice.Slice{Arch: "arm64", Destination: slice.IOSSimulator, Version: "14.0", SDK: "17.0"},
			wantOK: true,
		},
		{
			name: "no version command",
			arch: "arm64",
			text: "Load command 0\n      cmd LC_SEGMENT_64\n  cmdsize 72\n",
		},
		{
			name: "unknown platform",
			arch: "arm64",
			text: "      cmd LC_BUILD_VERSION\n platform FOOOS\n    minos 1.0\n      sdk 1.0\n",
		},
		{
			name: "missing sdk",
			arch: "arm64",
			text: "      cmd LC_VERSION_MIN_TVOS\n  version 12.0\n      cmd LC_SYMTAB\n      sdk 1.0\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := slice.ParseDescription(tt.arch, tt.text)
			if ok != tt.wantOK {
				t.Fatalf("want ok %v, got %v", tt.wantOK, ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("slice (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in     string
		want   slice.Platform
		wantOK bool
	}{
		{in: "IOS", want: slice.IOS, wantOK: true},
		{in: "7", want: slice.IOSSimulator, wantOK: true},
		{in: "MACCATALYST", want: slice.MacCatalyst, wantOK: true},
		{in: "watchossimulator", want: slice.WatchOSSimulator, wantOK: true},
		{in: "5", want: slice.Platform(5)},
		{in: "visionos"},
	}
	for _, tt := range tests {
		got, ok := slice.ParsePlatform(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("%s: want %v %v, got %v %v", tt.in, tt.want, tt.wantOK, got, ok)
		}
	}
}

func TestPlatformVariants(t *testing.T) {
	tests := []struct {
		p         slice.Platform
		sim       slice.Platform
		hasSim    bool
		supported string
		variant   string
	}{
		{p: slice.IOS, sim: slice.IOSSimulator, hasSim: true, supported: "ios"},
		{p: slice.TVOS, sim: slice.TVOSSimulator, hasSim: true, supported: "tvos"},
		{p: slice.WatchOS, sim: slice.WatchOSSimulator, hasSim: true, supported: "watchos"},
		{p: slice.MacOS, supported: "macos"},
		{p: slice.MacCatalyst, supported: "ios", variant: "maccatalyst"},
		{p: slice.IOSSimulator, supported: "ios", variant: "simulator"},
	}
	for _, tt := range tests {
		t.Run(tt.p.String(), func(t *testing.T) {
			sim, ok := tt.p.SimulatorVariant()
			if ok != tt.hasSim || sim != tt.sim {
				t.Errorf("simulator variant: want %v %v, got %v %v", tt.sim, tt.hasSim, sim, ok)
			}
			if got := tt.p.SupportedPlatform(); got != tt.supported {
				t.Errorf("supported platform: want %s, got %s", tt.supported, got)
			}
			if got := tt.p.Variant(); got != tt.variant {
				t.Errorf("variant: want %q, got %q", tt.variant, got)
			}
		})
	}

	if p, ok := slice.PlatformFromLoadCommand("LC_VERSION_MIN_WATCHOS", "armv7k"); !ok || p != slice.WatchOS {
		t.Errorf("armv7k watchOS: got %v %v", p, ok)
	}
	if p, ok := slice.PlatformFromLoadCommand("LC_VERSION_MIN_WATCHOS", "i386"); !ok || p != slice.WatchOSSimulator {
		t.Errorf("i386 watchOS: got %v %v", p, ok)
	}
	if _, ok := slice.PlatformFromLoadCommand("LC_SYMTAB", "arm64"); ok {
		t.Errorf("LC_SYMTAB is not a version command")
	}
}
