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
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"
)

type proxyContext struct {
	common commonFlags
	listen string
	to     string
}

func registerProxy(app *kingpin.Application) (*kingpin.CmdClause, *proxyContext) {
	var ctx proxyContext
	cmd := app.Command("proxy", "Reverse-proxy one listen address to one upstream, with no routing configuration.")
	bindCommonFlags(cmd, &ctx.common)
	cmd.Flag("listen", "Address to bind.").Default("127.0.0.1:8080").StringVar(&ctx.listen)
	cmd.Arg("to", "Upstream base URL, e.g. http://127.0.0.1:9001.").Required().StringVar(&ctx.to)
	return cmd, &ctx
}

// doProxy runs a single-upstream ad-hoc reverse proxy, the quick-check
// counterpart to a full cluster route, useful for confirming a backend
// is reachable before writing it into a routing config.
func doProxy(ctx *proxyContext) error {
	if err := ctx.common.applyEnv(); err != nil {
		return err
	}

	target, err := url.Parse(ctx.to)
	if err != nil {
		return fmt.Errorf("invalid upstream URL %q: %w", ctx.to, err)
	}

	rp := httputil.NewSingleHostReverseProxy(target)

	ln, err := net.Listen("tcp", ctx.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", ctx.listen, err)
	}

	log := logrus.New()
	log.WithField("addr", ctx.listen).WithField("to", ctx.to).Info("lynxgate proxy: serving")

	httpSrv := &http.Server{Handler: rp}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-c:
		return httpSrv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
