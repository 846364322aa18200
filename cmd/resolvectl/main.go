// Command resolvectl resolves creator profiles from the terminal using the
// same provider configuration as the API.
package main

import (
	"log/slog"
	"os"

	"github.com/illegalcall/profile-resolver/internal/config"
	"github.com/illegalcall/profile-resolver/internal/resolver"
)

func main() {
	cfg := config.LoadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	root := newRootCmd(resolver.NewFromConfig(cfg, logger, nil))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
