package main

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/urfave/cli/v2"

	"github.com/reglet-dev/dylib-host/application/schema"
	"github.com/reglet-dev/dylib-host/host"
)

func exchangeAction(c *cli.Context) error {
	lib, cfg, err := loadLibrary(c)
	if err != nil {
		return err
	}
	defer unload(c, lib)

	var opts []host.ExchangeOption
	if c.IsSet("used") {
		opts = append(opts, host.WithUsedSize(c.Int("used")))
	}
	if c.Bool("read-only") {
		opts = append(opts, host.WithMutation(false))
	}

	buf := make([]byte, cfg.BufferSize)
	res, err := lib.Exchange(c.Context, buf, opts...)
	if err != nil {
		return err
	}
	dump(c, res)

	switch {
	case res.Written == 0:
		printf(c, "returned 0, maybe buffer too small?\n")
	case res.Query:
		printf(c, "library would write %d bytes\n", res.Written)
	default:
		printf(c, "%s\n", trimNUL(buf[:res.Written]))
	}
	return nil
}

func legacyAction(c *cli.Context) error {
	lib, _, err := loadLibrary(c)
	if err != nil {
		return err
	}
	defer unload(c, lib)

	out, err := lib.ExchangeByValue(c.Context, []byte(c.String("data")))
	if err != nil {
		return err
	}
	dump(c, out)
	printf(c, "%s\n", trimNUL(out))
	return nil
}

func stressAction(c *cli.Context) error {
	lib, cfg, err := loadLibrary(c)
	if err != nil {
		return err
	}
	defer unload(c, lib)

	pool, err := ants.NewPool(c.Int("workers"))
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		wg                 sync.WaitGroup
		wrote, empty, fail atomic.Int64
	)
	for i, count := 0, c.Int("count"); i < count; i++ {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			n, err := lib.ExchangeInPlace(c.Context, make([]byte, cfg.BufferSize))
			switch {
			case err != nil:
				fail.Add(1)
			case n == 0:
				empty.Add(1)
			default:
				wrote.Add(1)
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			fail.Add(1)
		}
	}
	wg.Wait()

	printf(c, "wrote=%d empty=%d failed=%d\n", wrote.Load(), empty.Load(), fail.Load())
	return nil
}

func schemaAction(c *cli.Context) error {
	data, err := schema.ConfigSchema()
	if err != nil {
		return err
	}
	printf(c, "%s\n", data)
	return nil
}

func trimNUL(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}
