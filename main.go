package main

import (
	"familycal/core/logger"
	"familycal/core/server"
)

func main() {
	if err := server.Run(); err != nil {
		logger.Error("run server error", "error", err)
	}
}
