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
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"

	pkgconfig "github.com/lynxgate/lynxgate/pkg/config"
)

type controlContext struct {
	common     commonFlags
	configFile string
}

func registerStop(app *kingpin.Application) (*kingpin.CmdClause, *controlContext) {
	var ctx controlContext
	cmd := app.Command("stop", "Ask a running gateway to shut down via its control plane.")
	bindCommonFlags(cmd, &ctx.common)
	cmd.Arg("config", "Path to the YAML process configuration file naming the control plane address.").Required().StringVar(&ctx.configFile)
	return cmd, &ctx
}

func registerReload(app *kingpin.Application) (*kingpin.CmdClause, *controlContext) {
	var ctx controlContext
	cmd := app.Command("reload", "Ask a running gateway to re-read its routing configuration via its control plane.")
	bindCommonFlags(cmd, &ctx.common)
	cmd.Arg("config", "Path to the YAML process configuration file naming the control plane address.").Required().StringVar(&ctx.configFile)
	return cmd, &ctx
}

func doControlRequest(ctx *controlContext, path string) error {
	if err := ctx.common.applyEnv(); err != nil {
		return err
	}

	params, err := pkgconfig.Load(ctx.configFile)
	if err != nil {
		return fmt.Errorf("configuration conflict: %w", err)
	}

	addr := params.ControlPlane.BindAddress
	if addr == "" {
		addr = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d%s", addr, params.ControlPlane.BindPort, path)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "", nil)
	if err != nil {
		return fmt.Errorf("control plane request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control plane returned %s", resp.Status)
	}
	return nil
}
