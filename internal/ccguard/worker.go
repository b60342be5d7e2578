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

package ccguard

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Run evaluates the guard on cfg.Tick until stop is closed, logging every
// newly banned client under a fresh correlation id so a ban can be traced
// back through the access log. It is meant to be registered with a
// workgroup.Group alongside the listener and control-plane workers.
func (g *Guard) Run(stop <-chan struct{}, log logrus.FieldLogger) error {
	ticker := time.NewTicker(g.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case now := <-ticker.C:
			for _, client := range g.Tick(now) {
				log.WithField("client", client).WithField("ban_id", uuid.New().String()).Warn("ccguard: banned client")
			}
		}
	}
}
