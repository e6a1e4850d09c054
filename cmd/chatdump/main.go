// Package main 是 chatdump 命令行工具的入口。
package main

import (
	"os"

	"chat-dumper-go/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
