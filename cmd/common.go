/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

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
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valpere/codeconvert/internal/config"
	"github.com/valpere/codeconvert/internal/store"
	"github.com/valpere/codeconvert/internal/translator"
)

// buildProviders constructs the upstream providers in configured order.
func buildProviders(cfgs []translator.ProviderConfig) ([]translator.Provider, error) {
	var list []translator.Provider

	for _, pc := range cfgs {
		switch pc.Kind {
		case config.KindOpenAI:
			list = append(list, translator.NewOpenAIProvider(pc))
		case config.KindOpenRouter:
			list = append(list, translator.NewOpenRouterProvider(pc))
		case config.KindOllama:
			list = append(list, translator.NewOllamaProvider(pc))
		default:
			fmt.Fprintf(os.Stderr, "Unknown provider kind: %s, skipping\n", pc.Kind)
		}
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("no valid providers configured")
	}
	return list, nil
}

// openStore opens the translation memory, creating its directory if needed.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		path = cfg.Cache.DBPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
