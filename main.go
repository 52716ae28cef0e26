package main

import "github.com/domainposture/posture-cli/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
