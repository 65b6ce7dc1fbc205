// Package main — точка входа session-service (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/studiolink/session-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
