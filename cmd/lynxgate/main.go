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

	"github.com/alecthomas/kingpin/v2"
)

func main() {
	app := kingpin.New("lynxgate", "Multi-protocol edge gateway: L7 reverse proxy, forward proxy, stream proxy.")
	app.HelpFlag.Short('h')

	proxy, proxyCtx := registerProxy(app)
	file, fileCtx := registerFile(app)
	run, runCtx := registerRun(app)
	start, startCtx := registerStart(app)
	stop, stopCtx := registerStop(app)
	reload, reloadCtx := registerReload(app)
	validate, validateCtx := registerValidate(app)
	respond, respondCtx := registerRespond(app)
	environ, environCtx := registerEnviron(app)

	args := os.Args[1:]
	cmd, err := app.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lynxgate:", err)
		os.Exit(2)
	}

	var runErr error
	switch cmd {
	case proxy.FullCommand():
		runErr = doProxy(proxyCtx)
	case file.FullCommand():
		runErr = doFile(fileCtx)
	case run.FullCommand():
		runErr = doRun(runCtx)
	case start.FullCommand():
		runErr = doRun(startCtx)
	case stop.FullCommand():
		runErr = doControlRequest(stopCtx, "/api/stop")
	case reload.FullCommand():
		runErr = doControlRequest(reloadCtx, "/api/reload")
	case validate.FullCommand():
		runErr = doValidate(validateCtx)
	case respond.FullCommand():
		runErr = doRespond(respondCtx)
	case environ.FullCommand():
		runErr = doEnviron(environCtx)
	default:
		app.Usage(args)
		os.Exit(2)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "lynxgate:", runErr)
		os.Exit(1)
	}
}
