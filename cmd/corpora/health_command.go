package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"corpora/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the database and external dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := newPrinter(cmd)

			p.section("database")
			healthy := checkDatabase(cmd.Context(), ctx, p)

			p.line("")
			p.section("dependencies")
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					healthy = false
				}
				p.status(result.Name, kind, result.Detail)
			}

			if !healthy {
				return errors.New("health check failed")
			}
			return nil
		},
	}
}

func checkDatabase(cmdCtx context.Context, ctx *commandContext, p *printer) bool {
	engine, err := ctx.ensureEngine(cmdCtx)
	if err != nil {
		p.status("open", statusError, err.Error())
		return false
	}
	health, err := ctx.db.CheckHealth(cmdCtx)
	if err != nil {
		p.status("integrity", statusError, err.Error())
		return false
	}
	ok := health.OK()
	switch {
	case ok:
		p.status("integrity", statusOK, health.Path)
	case len(health.MissingTables) > 0:
		p.status("integrity", statusError, "missing tables: "+strings.Join(health.MissingTables, ", "))
	default:
		p.status("integrity", statusError, health.Error)
	}
	p.status("migrations", statusInfo, fmt.Sprint(len(health.Migrations)))
	p.status("stages", statusInfo, strings.Join(engine.Runner.Canonical(), " > "))
	return ok
}
