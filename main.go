/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/nvisust/authserver/cmd"

func main() {
	cmd.Execute()
}
