package main

import "github.com/jessevdk/go-flags"

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// options is parsed with go-flags rather than the standard flag package:
// avdecc-dump exposes a "discover" / "dump" command pair rather than one
// flat flag set, which go-flags' Commander models more directly than
// flag.FlagSet would.
type options struct {
	Iface      string `short:"i" long:"iface" description:"Network interface to discover and enumerate entities on"`
	ConfigPath string `short:"c" long:"config" description:"YAML config file providing defaults for iface/timeout/flags"`
	Timeout    string `short:"t" long:"timeout" default:"5s" description:"How long to listen for ADP advertisements before enumerating"`
	Version    bool   `long:"version" description:"Print version and exit"`

	Discover discoverCommand `command:"discover" description:"List entities currently advertising on the bus"`
	Dump     dumpCommand     `command:"dump" description:"Enumerate one entity and print its persisted document"`
}

type discoverCommand struct{}

type dumpCommand struct {
	EntityID string `short:"e" long:"entity" required:"true" description:"Target entity ID, hex (e.g. 0x0011223344556677)"`
	Format   string `short:"f" long:"format" default:"json" description:"Output format: json|table|binary (any other value prints json)"`
	Out      string `short:"o" long:"out" description:"Write output to this file instead of stdout"`

	ADP            bool `long:"adp" description:"Include ADP section"`
	Compatibility  bool `long:"compat" description:"Include compatibility section"`
	StaticModel    bool `long:"static" description:"Include static model section"`
	DynamicModel   bool `long:"dynamic" description:"Include dynamic model section"`
	Identify       bool `long:"identify" description:"Include resolved identify-control state section"`
	All            bool `long:"all" description:"Include the adp, compat, static, dynamic and identify sections (overrides the individual flags above)"`
}

// parseOptions parses args with go-flags, returning the populated options
// and the name of the subcommand invoked ("discover" or "dump").
func parseOptions(args []string) (*options, string, error) {
	opts := &options{}
	parser := flags.NewParser(opts, flags.Default)
	parser.Name = "avdecc-dump"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, "", err
	}
	if parser.Active == nil {
		return opts, "", nil
	}
	return opts, parser.Active.Name, nil
}
