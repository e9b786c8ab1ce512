package main

import (
	"os"

	"github.com/small-frappuccino/modwarden/pkg/app"
	"github.com/small-frappuccino/modwarden/pkg/log"
)

// main is the entry point of the moderation bot.
func main() {
	if err := app.Run("modwarden", "DISCORD_BOT_TOKEN"); err != nil {
		log.Error("Fatal", "err", err)
		os.Exit(1)
	}
}
