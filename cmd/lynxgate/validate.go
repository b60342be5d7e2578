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

	"github.com/alecthomas/kingpin/v2"

	pkgconfig "github.com/lynxgate/lynxgate/pkg/config"
)

type validateContext struct {
	common     commonFlags
	configFile string
}

func registerValidate(app *kingpin.Application) (*kingpin.CmdClause, *validateContext) {
	var ctx validateContext
	cmd := app.Command("validate", "Parse and validate a configuration file without starting the gateway.")
	bindCommonFlags(cmd, &ctx.common)
	cmd.Arg("config", "Path to the YAML process configuration file.").Required().StringVar(&ctx.configFile)
	return cmd, &ctx
}

// doValidate parses the process configuration and the DSL routing graph
// it references, reporting the first error found. It never binds a
// socket or starts a goroutine.
func doValidate(ctx *validateContext) error {
	if err := ctx.common.applyEnv(); err != nil {
		return err
	}

	params, err := pkgconfig.Load(ctx.configFile)
	if err != nil {
		return fmt.Errorf("configuration conflict: %w", err)
	}

	if params.RoutesFile == "" {
		return fmt.Errorf("configuration conflict: routesFile is required")
	}

	store, err := newConfigStore(params.RoutesFile)
	if err != nil {
		return fmt.Errorf("invalid routing graph: %w", err)
	}

	graph := store.Graph()
	fmt.Printf("ok: %d listener(s), %d route(s), %d cluster(s)\n", len(graph.Listens), len(graph.Routes), len(graph.Clusters))
	return nil
}
