package main

import (
	"github.com/polling-agent/cmd/agent"
)

func main() {
	agent.Execute()
}
