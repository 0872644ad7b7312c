package main

import (
	"os"

	"horse.fit/storify/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
