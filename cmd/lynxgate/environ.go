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
	"sort"

	"github.com/alecthomas/kingpin/v2"
)

type environContext struct {
	common commonFlags
}

func registerEnviron(app *kingpin.Application) (*kingpin.CmdClause, *environContext) {
	var ctx environContext
	cmd := app.Command("environ", "Print the process environment after applying --env and -e overrides.")
	bindCommonFlags(cmd, &ctx.common)
	return cmd, &ctx
}

// doEnviron applies the common env overrides and prints the resulting
// environment, sorted, so operators can confirm an .env file and -e
// overrides resolve the way they expect before "run" picks them up.
func doEnviron(ctx *environContext) error {
	if err := ctx.common.applyEnv(); err != nil {
		return err
	}

	env := os.Environ()
	sort.Strings(env)
	for _, kv := range env {
		fmt.Println(kv)
	}
	return nil
}
