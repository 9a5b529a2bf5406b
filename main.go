package main

import "github.com/wentf9/gitlab-deploy/cmd"

func main() {
	cmd.Execute()
}
