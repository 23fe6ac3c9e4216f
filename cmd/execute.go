package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/gui17aume/xcframework-now/pkg/config"
	"github.com/gui17aume/xcframework-now/pkg/slice"
	"github.com/gui17aume/xcframework-now/pkg/toolchain"
	"github.com/gui17aume/xcframework-now/pkg/xcframework"
	"github.com/integrii/flaggy"
)

func fatal(w io.Writer, msg string, showUsage bool) (exitCode int) {
	fmt.Fprintf(w, "Error %s\n", msg)
	if showUsage {
		fmt.Fprint(w, usage)
	}
	return 1
}

func Execute(stdout, stderr io.Writer, args []string) (exitCode int) {
	in := &inputs{}
	var configFile string
	var jobs int
	var zip, verbose bool

	p := flaggy.NewParser(name)
	p.Description = description
	p.ShowVersionWithVersionFlag = false
	p.ShowHelpOnUnexpected = false
	p.StringSlice(&in.frameworks, "framework", "framework", "Adds a framework from the given <path>.")
	p.StringSlice(&in.libraries, "library", "library", "Adds a static or dynamic library from the given <path>.")
	p.StringSlice(&in.headers, "headers", "headers", "Adds the headers from the given <path>. Only applicable with -library.")
	p.String(&in.output, "output", "output", "The <path> to write the xcframework to.")
	p.String(&configFile, "config", "config", "The configuration file.")
	p.Int(&jobs, "jobs", "jobs", "The number of objects converted at once.")
	p.Bool(&zip, "zip", "zip", "Also write <output>.zip.")
	p.Bool(&verbose, "verbose", "verbose", "Print debug logs.")

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}
	if err := p.ParseArgs(args); err != nil {
		return fatal(stderr, err.Error(), true)
	}
	if err := in.validate(); err != nil {
		return fatal(stderr, err.Error(), true)
	}

	v := config.New()
	if jobs > 0 {
		v.Set("jobs", jobs)
	}
	if zip {
		v.Set("zip", true)
	}
	if verbose {
		v.Set("verbose", true)
	}
	c, err := config.Load(v, configFile)
	if err != nil {
		return fatal(stderr, err.Error(), false)
	}

	log.SetHandler(clihandler.New(stderr))
	log.SetLevel(log.InfoLevel)
	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, c, in); err != nil {
		return fatal(stderr, err.Error(), false)
	}
	fmt.Fprintln(stdout, in.output)
	return 0
}

func run(ctx context.Context, c *config.Config, in *inputs) error {
	var inspector slice.Inspector = slice.NativeInspector{}
	if c.Inspector == config.InspectorTools {
		inspector = &slice.ToolInspector{Runner: toolchain.Exec{}}
	}

	bundles := []*xcframework.Bundle{}
	for _, p := range in.frameworks {
		b, err := xcframework.OpenFramework(ctx, inspector, p)
		if err != nil {
			return err
		}
		bundles = append(bundles, b)
	}
	for i, p := range in.libraries {
		b, err := xcframework.OpenLibrary(ctx, inspector, p, in.headersOf(i))
		if err != nil {
			return err
		}
		bundles = append(bundles, b)
	}

	builder, err := xcframework.NewBuilder(c.Builder, toolchain.Exec{})
	if err != nil {
		return err
	}
	opts := []xcframework.Option{
		xcframework.WithBuilder(builder),
		xcframework.WithRunner(toolchain.Exec{}),
		xcframework.WithTmpDir(c.TmpDir),
		xcframework.WithJobs(c.Jobs),
	}
	if c.Zip {
		opts = append(opts, xcframework.WithZip())
	}
	return xcframework.New(bundles, opts...).Package(ctx, in.output)
}
