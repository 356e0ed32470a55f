// Copyright 2025 Tom Barlow
//
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

package shared

import (
	"github.com/uptimizeai/zenthia/internal/client"
)

// NewClient creates a controller client honouring --host and --api-token.
func NewClient() (*client.Client, error) {
	var opts []client.Option
	if host := GetHost(); host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if token := GetAPIToken(); token != "" {
		opts = append(opts, client.WithAPIKey(token))
	}
	if ca := GetCACert(); ca != "" {
		opts = append(opts, client.WithCACert(ca))
	}
	c, err := client.New(opts...)
	if err != nil {
		return nil, NewUsageError(err.Error())
	}
	return c, nil
}
