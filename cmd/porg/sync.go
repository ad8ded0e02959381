package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
)

func cmdSync(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("sync", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return usageErrf("%v", err)
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	res, err := e.syncer.Sync(ctx)
	if err != nil {
		return partialErr(err)
	}
	if err := e.ports.Rescan(); err != nil {
		return partialErr(err)
	}

	if res.Cloned {
		fmt.Printf("cloned ports tree into %s\n", res.Dir)
	} else {
		fmt.Printf("ports tree at %s up to date\n", res.Dir)
	}
	return nil
}
