package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/vidshare/backend/internal/app"
	"github.com/vidshare/backend/internal/config"
)

func main() {
	ctx := context.Background()
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, config.ErrConfiguration) {
			log.Printf("vidshare: %v", err)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
