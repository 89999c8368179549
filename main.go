package main

import "github.com/deploymenttheory/vdfs4-unpacker/cmd"

func main() {
	cmd.Execute()
}
