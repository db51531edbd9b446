package main

import "github.com/notargets/lesproj/cmd"

func main() {
	cmd.Execute()
}
