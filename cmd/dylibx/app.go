package main

import (
	"fmt"
	"log/slog"

	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"

	"github.com/reglet-dev/dylib-host/application/config"
	"github.com/reglet-dev/dylib-host/domain/entities"
	"github.com/reglet-dev/dylib-host/host"
	dlog "github.com/reglet-dev/dylib-host/log"
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "dylibx"
	app.Usage = "load a dynamic library and exchange buffers with it"
	app.Description = "dylibx opens a shared object or WebAssembly module exporting exchange_inplace " +
		"and the legacy exchange function, and calls them the way a host application would."
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "log-format", Value: dlog.FormatText, Usage: "text or json"},
		&cli.BoolFlag{Name: "dump", Usage: "dump exchange results"},
	}
	app.Before = func(c *cli.Context) error {
		level, err := dlog.ParseLevel(c.String("log-level"))
		if err != nil {
			return err
		}
		dlog.Setup(c.App.ErrWriter, dlog.WithLevel(level), dlog.WithFormat(c.String("log-format")))
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:   "exchange",
			Usage:  "exchange a buffer in place",
			Action: exchangeAction,
			Flags: append(libraryFlags(),
				&cli.IntFlag{Name: "used", Usage: "logical size of the data in the buffer (default: buffer size)"},
				&cli.BoolFlag{Name: "read-only", Usage: "forbid the library to write, report the size it would write"},
			),
		},
		{
			Name:   "legacy",
			Usage:  "send data to the by-value exchange function",
			Action: legacyAction,
			Flags: append(libraryFlags(),
				&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Value: "test", Usage: "data to send"},
			),
		},
		{
			Name:   "stress",
			Usage:  "run concurrent in-place exchanges on one handle",
			Action: stressAction,
			Flags: append(libraryFlags(),
				&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 8, Usage: "worker pool size"},
				&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1000, Usage: "number of exchanges"},
			),
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of the configuration file",
			Action: schemaAction,
		},
	}
	return app
}

func libraryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "lib", Aliases: []string{"l"}, Usage: "path of the library to load"},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
		&cli.IntFlag{Name: "size", Aliases: []string{"s"}, Value: entities.DefaultBufferSize, Usage: "buffer size in bytes"},
		&cli.UintFlag{Name: "revision", Aliases: []string{"r"}, Usage: "pin the exchange_inplace revision (2, 3 or 4)"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "native or wasm (default: from the extension)"},
		&cli.BoolFlag{Name: "protobuf-cpp", Usage: "set " + entities.ProtobufImplementationEnv + "=cpp while loaded"},
	}
}

// resolveConfig merges the configuration file with command line flags.
func resolveConfig(c *cli.Context) (*entities.Config, error) {
	cfg := entities.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if c.IsSet("lib") {
		cfg.Library = c.String("lib")
	}
	if c.IsSet("size") {
		cfg.BufferSize = c.Int("size")
	}
	if c.IsSet("revision") {
		cfg.Revision = entities.Revision(c.Uint("revision")) //nolint:gosec // G115: validated below
	}
	if c.IsSet("format") {
		cfg.Format = entities.Format(c.String("format"))
	}
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadLibrary(c *cli.Context) (*host.Library, *entities.Config, error) {
	cfg, err := resolveConfig(c)
	if err != nil {
		return nil, nil, err
	}

	opts := []host.LoaderOption{host.WithConfig(*cfg), host.WithLogger(slog.Default())}
	if c.Bool("protobuf-cpp") {
		opts = append(opts, host.WithProtobufCppCompat())
	}
	lib, err := host.NewLoader(opts...).Load(c.Context, cfg.Library)
	if err != nil {
		return nil, nil, err
	}
	return lib, cfg, nil
}

func unload(c *cli.Context, lib *host.Library) {
	if err := lib.Unload(c.Context); err != nil {
		slog.WarnContext(c.Context, "dylibx: unload failed", "error", err)
	}
}

func dump(c *cli.Context, v ...any) {
	if !c.Bool("dump") {
		return
	}
	cfg := spew.NewDefaultConfig()
	cfg.MaxDepth = 3
	cfg.DisablePointerAddresses = true
	cfg.Fdump(c.App.Writer, v...)
}

func printf(c *cli.Context, format string, args ...any) {
	_, _ = fmt.Fprintf(c.App.Writer, format, args...)
}
