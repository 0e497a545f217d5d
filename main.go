/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/azure/tagged-resource-cleanup/cmd"

func main() {
	cmd.Execute()
}
