/**
 * 外部进程执行抽象
 * @author: sun977
 * @date: 2026.08.14
 * @description: 外部扫描工具进程调用的统一入口，便于测试替换
 * @func: Commander 接口、ExecCommander 实现
 */
package core

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Commander 外部命令执行接口
// 扫描器和探测器通过该接口调用外部进程，测试中用假实现替换
type Commander interface {
	// Run 执行命令并等待退出，返回合并后的标准输出和标准错误
	// timeout 为 0 时只受 ctx 控制
	Run(ctx context.Context, bin string, args []string, timeout time.Duration) ([]byte, error)

	// LookPath 检查可执行文件是否存在于 PATH 或给定路径
	LookPath(bin string) (string, error)
}

// ExecCommander 基于 os/exec 的默认实现
type ExecCommander struct{}

// NewExecCommander 创建默认命令执行器
func NewExecCommander() *ExecCommander {
	return &ExecCommander{}
}

// Run 执行命令
// 超时或被取消时 exec.CommandContext 会杀掉进程
func (e *ExecCommander) Run(ctx context.Context, bin string, args []string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%s timed out after %s", bin, timeout)
		}
		return output, fmt.Errorf("%s failed: %w", bin, err)
	}
	return output, nil
}

// LookPath 检查可执行文件
func (e *ExecCommander) LookPath(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("executable %s not found: %w", bin, err)
	}
	return path, nil
}
