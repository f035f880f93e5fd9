package main

import (
	"os"

	"github.com/mensylisir/xmguest/logger"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		logger.Log.Error(err)
		os.Exit(1)
	}
}
