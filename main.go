/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/authkeep/authserver/cmd"

func main() {
	cmd.Execute()
}
