package main

import "github.com/oshokin/alarm-core/cmd/alarm-core-server/cmd"

func main() {
	cmd.Execute()
}
