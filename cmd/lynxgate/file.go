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
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"

	"github.com/lynxgate/lynxgate/internal/staticfs"
)

type fileContext struct {
	common  commonFlags
	root    string
	listen  string
	browse  bool
	tryFile []string
}

func registerFile(app *kingpin.Application) (*kingpin.CmdClause, *fileContext) {
	var ctx fileContext
	cmd := app.Command("file", "Serve one directory as a static file server, with no routing configuration.")
	bindCommonFlags(cmd, &ctx.common)
	cmd.Flag("listen", "Address to bind.").Default("127.0.0.1:8080").StringVar(&ctx.listen)
	cmd.Flag("browse", "Emit a directory listing when no index file is found.").BoolVar(&ctx.browse)
	cmd.Flag("try-file", "Fallback path to try, in order; repeatable.").StringsVar(&ctx.tryFile)
	cmd.Arg("root", "Directory to serve.").Required().StringVar(&ctx.root)
	return cmd, &ctx
}

// doFile runs a one-shot static file server rooted at ctx.root, blocking
// until signaled. It exercises internal/staticfs directly, without a
// routing graph, the way the teacher's debug/httpsvc services run
// standalone outside the main serve path.
func doFile(ctx *fileContext) error {
	if err := ctx.common.applyEnv(); err != nil {
		return err
	}

	tryFiles := ctx.tryFile
	if len(tryFiles) == 0 {
		tryFiles = []string{"{path}", "{path}/index.html"}
	}

	srv := staticfs.New(staticfs.Config{
		Root:             ctx.root,
		TryFiles:         tryFiles,
		DirectoryListing: ctx.browse,
	})

	ln, err := net.Listen("tcp", ctx.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", ctx.listen, err)
	}

	log := logrus.New()
	log.WithField("addr", ctx.listen).WithField("root", ctx.root).Info("lynxgate file: serving")

	httpSrv := &http.Server{Handler: srv}
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
