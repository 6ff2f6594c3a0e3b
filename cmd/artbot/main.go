package main

import (
	"github.com/alx/artbot-for-stable-diffusion/cmd/artbot/cmd"
)

func main() {
	cmd.Execute()
}
