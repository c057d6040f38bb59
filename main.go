/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/mautops/project-approval/cmd"

func main() {
	cmd.Execute()
}
