// Copyright lynxgate authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	pkgconfig "github.com/lynxgate/lynxgate/pkg/config"
)

type runContext struct {
	common     commonFlags
	configFile string
	daemonize  bool
}

func registerRun(app *kingpin.Application) (*kingpin.CmdClause, *runContext) {
	var ctx runContext
	cmd := app.Command("run", "Start the gateway in the foreground and block until signaled.")
	bindCommonFlags(cmd, &ctx.common)
	cmd.Arg("config", "Path to the YAML process configuration file.").Required().StringVar(&ctx.configFile)
	return cmd, &ctx
}

func registerStart(app *kingpin.Application) (*kingpin.CmdClause, *runContext) {
	var ctx runContext
	ctx.daemonize = true
	cmd := app.Command("start", "Start the gateway in the foreground, as run does; it does not detach.")
	bindCommonFlags(cmd, &ctx.common)
	cmd.Arg("config", "Path to the YAML process configuration file.").Required().StringVar(&ctx.configFile)
	return cmd, &ctx
}

// doRun loads configuration, builds every long-running component, and
// blocks until a termination signal arrives, the control plane's
// /api/stop handler fires, or a component exits on its own.
//
// "start" is accepted as a distinct verb for symmetry with "stop"/
// "reload" (which address a running process through the control plane
// address named in its configuration file), but this binary
// has no re-exec/fork step: operators background it themselves (a
// service supervisor, "&", tmux) the same way they would "run".
func doRun(ctx *runContext) error {
	if err := ctx.common.applyEnv(); err != nil {
		return err
	}

	params, err := pkgconfig.Load(ctx.configFile)
	if err != nil {
		return fmt.Errorf("configuration conflict: %w", err)
	}
	applyCommonOverrides(&params, &ctx.common)

	if params.RoutesFile == "" {
		return fmt.Errorf("configuration conflict: routesFile is required")
	}
	if err := writePIDFile(params.PIDFile); err != nil {
		return err
	}

	log, err := newErrorLogger(params.ErrorLog)
	if err != nil {
		return err
	}

	store, err := newConfigStore(params.RoutesFile)
	if err != nil {
		return fmt.Errorf("invalid routing graph: %w", err)
	}

	gw, err := buildGateway(params, store, log)
	if err != nil {
		return err
	}

	gw.group.Add(func(stop <-chan struct{}) error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-c:
			log.WithField("signal", sig).Info("lynxgate: shutting down")
		case <-stop:
		}
		return nil
	})

	return gw.Run()
}

// applyCommonOverrides layers the command-line common flags on top of
// the values loaded from the process configuration file, the same
// "file, then flags" precedence the teacher applies to its own
// ServeContext.
func applyCommonOverrides(params *pkgconfig.Parameters, c *commonFlags) {
	if c.pidFile != "" {
		params.PIDFile = c.pidFile
	}
	if c.perfLog != "" {
		params.PerfLog = pkgconfig.LogTarget(c.perfLog)
	}
	if c.accessLog != "" {
		params.AccessLog = pkgconfig.LogTarget(c.accessLog)
	}
	if c.errorLog != "" {
		params.ErrorLog = pkgconfig.LogTarget(c.errorLog)
	}
}
