/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import (
	"fmt"

	"github.com/reeflab/reefcore/internal/config"
)

// NewStore creates a store based on configuration
func NewStore(cfg *config.StorageConfig) (Store, error) {
	dialect, dsn, err := cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("resolving storage dsn: %w", err)
	}

	st, err := NewGormStoreWithPool(dialect, dsn, ConnectionPoolConfig{
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
