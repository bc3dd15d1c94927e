package main

import "github.com/nextlevelbuilder/argus/cmd"

func main() {
	cmd.Execute()
}
