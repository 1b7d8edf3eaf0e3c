package main

import (
	"flag"
	"log"
	"os"

	"github.com/stayware/booking/internal/app"
	"github.com/stayware/booking/internal/logger"
)

func main() {
	confPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	l := logger.New(log.Default())

	var exitCode int

	if err := app.Run(l, *confPath); err != nil {
		l.LogErrorf("Failed to run app: %v", err.Error())

		exitCode = 1
	}

	os.Exit(exitCode)
}
