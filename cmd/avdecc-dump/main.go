// Command avdecc-dump discovers AVDECC entities on a network interface
// and either lists them or enumerates one and prints its persisted
// document, a discovery/entityDumper example pair.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/avdecc-go/avdecc/internal/config"
	"github.com/avdecc-go/avdecc/internal/logger"
	"github.com/avdecc-go/avdecc/pkg/avdecc/persistence"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

func main() {
	opts, cmd, err := parseOptions(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println(version)
		return
	}

	logger.Init()
	log := logger.Logger().With("component", "cli")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Error("failed to load config", "path", opts.ConfigPath, "error", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		if err := logger.SetLevel(cfg.LogLevel); err != nil {
			log.Warn("ignoring unrecognized config log level", "level", cfg.LogLevel, "error", err)
		}
	}

	cfg.Interface = resolveIface(opts.Iface, cfg)
	if cfg.Interface == "" {
		fmt.Fprintln(os.Stderr, "avdecc-dump: -iface (or config interface:) is required")
		os.Exit(2)
	}
	timeout, err := resolveTimeout(opts.Timeout, cfg, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avdecc-dump: invalid timeout: %v\n", err)
		os.Exit(2)
	}

	switch cmd {
	case "discover":
		runDiscoverCommand(cfg, timeout)
	case "dump":
		runDumpCommand(cfg, timeout, &opts.Dump)
	default:
		fmt.Fprintln(os.Stderr, "avdecc-dump: expected a command: discover|dump")
		os.Exit(2)
	}
}

func runDiscoverCommand(cfg config.Config, timeout time.Duration) {
	snaps, err := runDiscover(cfg, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avdecc-dump: discover failed: %v\n", err)
		os.Exit(1)
	}
	renderDiscoveredEntities(os.Stdout, snaps)
}

func runDumpCommand(cfg config.Config, timeout time.Duration, cmd *dumpCommand) {
	entityID, err := parseEntityID(cmd.EntityID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avdecc-dump: %v\n", err)
		os.Exit(2)
	}

	entity, err := runDump(cfg, entityID, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avdecc-dump: dump failed: %v\n", err)
		os.Exit(1)
	}

	flags := dumpFlags(cmd)
	out := os.Stdout
	if cmd.Out != "" {
		f, err := os.Create(cmd.Out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "avdecc-dump: cannot open %s: %v\n", cmd.Out, err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	switch cmd.Format {
	case "table":
		if tree := entity.Tree(); tree != nil {
			renderEntityModel(out, tree)
		} else {
			fmt.Fprintln(out, "entity has not been enumerated")
		}
	case "binary":
		data, err := persistence.Serialize(entity, flags|persistence.BinaryFormat, "avdecc-dump")
		if err != nil {
			fmt.Fprintf(os.Stderr, "avdecc-dump: serialize failed: %v\n", err)
			os.Exit(1)
		}
		if _, err := out.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "avdecc-dump: write failed: %v\n", err)
			os.Exit(1)
		}
	default:
		data, err := persistence.Serialize(entity, flags, "avdecc-dump")
		if err != nil {
			fmt.Fprintf(os.Stderr, "avdecc-dump: serialize failed: %v\n", err)
			os.Exit(1)
		}
		if _, err := out.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "avdecc-dump: write failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(out)
	}
}

func dumpFlags(cmd *dumpCommand) persistence.Flags {
	if cmd.All {
		return persistence.ProcessADP | persistence.ProcessCompatibility | persistence.ProcessStaticModel |
			persistence.ProcessDynamicModel | persistence.ProcessState
	}
	var f persistence.Flags
	if cmd.ADP {
		f |= persistence.ProcessADP
	}
	if cmd.Compatibility {
		f |= persistence.ProcessCompatibility
	}
	if cmd.StaticModel {
		f |= persistence.ProcessStaticModel
	}
	if cmd.DynamicModel {
		f |= persistence.ProcessDynamicModel
	}
	if cmd.Identify {
		f |= persistence.ProcessState
	}
	if f == 0 {
		f = persistence.ProcessADP | persistence.ProcessStaticModel
	}
	return f
}

func parseEntityID(s string) (protocol.EntityID, error) {
	trimmed := s
	base := 10
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		trimmed = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(trimmed, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid entity id %q: %w", s, err)
	}
	return protocol.EntityID(v), nil
}
