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
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"

	"github.com/lynxgate/lynxgate/internal/respond"
)

type respondContext struct {
	common     commonFlags
	listen     string
	body       string
	statusCode int
	showReq    bool
}

func registerRespond(app *kingpin.Application) (*kingpin.CmdClause, *respondContext) {
	var ctx respondContext
	cmd := app.Command("respond", "Serve a canned response on every request, with no routing configuration.")
	bindCommonFlags(cmd, &ctx.common)
	cmd.Flag("listen", "Address to bind.").Default("127.0.0.1:8080").StringVar(&ctx.listen)
	cmd.Flag("status", "HTTP status code to return.").Default("200").IntVar(&ctx.statusCode)
	cmd.Flag("show-req", "Append a dump of the request headers to the body.").BoolVar(&ctx.showReq)
	cmd.Arg("body", "Response body template; may use the canned-response placeholders.").StringVar(&ctx.body)
	return cmd, &ctx
}

// doRespond runs a one-shot canned responder, the ad-hoc counterpart to
// the config-driven canned-response route, useful for quickly checking a
// body template's placeholder substitution.
func doRespond(ctx *respondContext) error {
	if err := ctx.common.applyEnv(); err != nil {
		return err
	}

	item := respond.Item{
		StatusCode: ctx.statusCode,
		Body:       ctx.body,
		ShowReq:    ctx.showReq,
	}

	_, port, err := net.SplitHostPort(ctx.listen)
	if err != nil {
		port = strconv.Itoa(ctx.statusCode)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := respond.FromHTTPRequest(r, port, clientIPOf(r), "respond")
		respond.WriteTo(w, item, req)
	})

	ln, err := net.Listen("tcp", ctx.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", ctx.listen, err)
	}

	log := logrus.New()
	log.WithField("addr", ctx.listen).Info("lynxgate respond: serving")

	httpSrv := &http.Server{Handler: handler}
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

func clientIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
