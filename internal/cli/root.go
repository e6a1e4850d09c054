// Package cli 实现 chatdump 命令行工具，用于离线处理已保存的对话记录。
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// 退出码
const (
	ExitSuccess    = 0
	ExitUsageError = 2
)

// NewRootCmd 构造 chatdump 根命令。
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatdump",
		Short:         "Offline tools for CharacterAI chat dumps",
		Long:          "chatdump redacts personal data from saved CharacterAI chat histories and reports on existing dumps.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRedactCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print chatdump version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatdump version %s\n", version)
		},
	})
	return root
}

// Run 执行根命令并返回退出码。
func Run() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExitUsageError
	}
	return ExitSuccess
}

// openInput 打开输入文件，"-" 或省略时读取标准输入。
func openInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}
