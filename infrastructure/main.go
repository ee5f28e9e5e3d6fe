package main

import (
	"fmt"
	"log"
	"runtime/debug"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/encsys/internal/stackconfig"
	"github.com/jrzesz33/encsys/internal/topology"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) (err error) {
		// Add panic recovery with detailed logging
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC RECOVERED: %v", r)
				log.Printf("Stack trace:\n%s", debug.Stack())
				err = fmt.Errorf("panic occurred: %v", r)
			}
		}()

		log.Printf("Starting Pulumi infrastructure deployment...")
		cfg, err := stackconfig.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		profile, err := topology.ParseProfile(cfg.Topology)
		if err != nil {
			return err
		}
		extra, err := topology.ParseGroups(cfg.Groups)
		if err != nil {
			return err
		}
		groups, err := topology.Plan(profile, extra)
		if err != nil {
			return err
		}
		log.Printf("Topology %s resolved to groups %v", profile, groups)

		if _, err := topology.Assemble(ctx, cfg, groups); err != nil {
			return err
		}

		log.Printf("Pulumi infrastructure deployment completed successfully")
		return nil
	})
}
