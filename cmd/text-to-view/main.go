package main

import "github.com/forPelevin/text2splat/internal/cli"

func main() { cli.ViewsMain() }
