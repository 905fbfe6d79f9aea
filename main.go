/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/tristendillon/locus/cmd"

func main() {
	cmd.Execute()
}
