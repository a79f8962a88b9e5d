package main

import "go.registries.dev/core/cmd/catalogctl/catalogctlcmd"

func main() { catalogctlcmd.Execute() }
