package main

import (
	"context"

	_ "github.com/aksw/quit-go/internal/repo" // registers quadstore.Open's implementation
	"github.com/aksw/quit-go/pkg/quadstore"
)

// openRepository opens the repository at the --dir flag's path using the
// loaded config, enabling provenance tracking when the caller asks for it.
func openRepository(enableProvenance bool) (quadstore.Repository, error) {
	target := dir
	if target == "" {
		target = cfg.TargetDir
	}

	features := cfg.Features
	if enableProvenance {
		features |= quadstore.FeatureProvenance
	}

	return quadstore.Open(context.Background(), quadstore.OpenOptions{
		Path:              target,
		Namespace:         cfg.Namespace,
		Mode:              cfg.Mode,
		ConfigPath:        cfg.ConfigFile,
		DefaultGraphUnion: cfg.DefaultGraphUnion,
		Features:          features,
		Author:            quadstore.Author{Name: "quit-cli", Email: "quit@localhost"},
	})
}
