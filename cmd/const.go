package cmd

const (
	name        = "xcframework-now"
	description = "Transform libraries or frameworks into an XCFramework, generating the arm64 simulator slices if missing."

	usage = `
Usage:
  xcframework-now -framework <path> [-framework <path> ...] -output <path>
  xcframework-now -library <path> [-headers <path>] [-library <path> ...] -output <path>

Flags:
  -framework <path>   Adds a framework from the given <path>.
  -library <path>     Adds a static or dynamic library from the given <path>.
  -headers <path>     Adds the headers from the given <path>. Only applicable with -library.
  -output <path>      The <path> to write the xcframework to.
  -config <path>      The configuration file (default $HOME/.config/xcframework-now/config.yaml).
  -jobs <n>           The number of objects converted at once.
  -zip                Also write <output>.zip.
  -verbose            Print debug logs.
`
)
