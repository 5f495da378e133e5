package main

import "github.com/oshokin/alarm-core/cmd/alarm-core/cmd"

func main() {
	cmd.Execute()
}
