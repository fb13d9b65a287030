package main

import (
	"github.com/nimburion/offlinequeue/pkg/cli"
	"github.com/nimburion/offlinequeue/pkg/config"
)

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "offlinequeue",
		Description: "Durable queue for mutations made while offline, replayed when connectivity returns",
		EnvPrefix:   config.DefaultEnvPrefix,
	}))
}
