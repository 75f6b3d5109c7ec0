package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gonglijing/biodataBridge/internal/app"
	"github.com/gonglijing/biodataBridge/internal/auth"
	"github.com/gonglijing/biodataBridge/internal/config"
	"github.com/gonglijing/biodataBridge/internal/logger"
	"github.com/gonglijing/biodataBridge/internal/nodeconfig"
)

func main() {
	configPath := flag.String("config", "", "服务配置文件路径（默认按 configs/config.yaml、config/config.yaml、./config.yaml 查找）")
	nodePath := flag.String("node", "", "节点配置记录路径，覆盖配置文件中的 node.config_path")
	check := flag.Bool("check", false, "校验节点配置记录并列出全部问题后退出")
	initNode := flag.String("init-node", "", "在指定路径写出节点配置示例后退出")
	hashPassword := flag.Bool("hash-password", false, "从标准输入读取密码并输出 bcrypt 哈希后退出")
	flag.Parse()

	if *hashPassword {
		os.Exit(runHashPassword(os.Stdin, os.Stdout, os.Stderr))
	}
	if *initNode != "" {
		os.Exit(runInitNode(*initNode, os.Stdout, os.Stderr))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *nodePath != "" {
		cfg.NodeConfigPath = *nodePath
	}

	if *check {
		os.Exit(runCheck(cfg.NodeConfigPath, os.Stdout))
	}

	logger.Configure(cfg.LogLevel, cfg.LogJSON)
	if cfg.LogFile != "" {
		closer, err := logger.InitFileOutput(cfg.LogFile, int64(cfg.LogMaxSizeMB)*1024*1024, cfg.LogMaxBackups)
		if err != nil {
			logger.Fatal("Failed to open log file", err, "path", cfg.LogFile)
		}
		defer closer.Close()
	}
	logger.Info("Starting biodata bridge", "config", cfg.String())

	if err := app.Run(cfg); err != nil {
		logger.Error("Application stopped with error", err)
		os.Exit(1)
	}
}

// runCheck 列出节点配置记录的全部问题；有问题返回 1
func runCheck(path string, out io.Writer) int {
	var (
		rec *nodeconfig.Record
		err error
	)
	if strings.TrimSpace(path) == "" {
		rec, err = nodeconfig.Load("")
		if err != nil {
			fmt.Fprintf(out, "FAIL %v\n", err)
			return 1
		}
	} else {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", path, readErr)
			return 1
		}
		rec, err = nodeconfig.ParseUnchecked(data)
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			return 1
		}
	}

	problems := rec.ValidateAll()
	for _, p := range problems {
		fmt.Fprintf(out, "FAIL %v\n", p)
	}
	for _, w := range rec.Warnings() {
		fmt.Fprintf(out, "WARN %s\n", w)
	}
	if len(problems) > 0 {
		fmt.Fprintf(out, "%d problem(s) found in %s\n", len(problems), displayPath(path))
		return 1
	}
	fmt.Fprintf(out, "OK %s (sensor %s, broker %s)\n", displayPath(path), rec.SensorID, rec.BrokerURL())
	return 0
}

func displayPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return "environment"
	}
	return path
}

// runInitNode 写出示例节点配置，不覆盖已有文件
func runInitNode(path string, out, errOut io.Writer) int {
	if err := nodeconfig.WriteTemplate(path); err != nil {
		fmt.Fprintf(errOut, "init-node: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "wrote %s; fill in the placeholders and run with -check\n", path)
	return 0
}

// runHashPassword 读取一行密码，输出 ADMIN_PASSWORD_HASH 可用的哈希
func runHashPassword(in io.Reader, out, errOut io.Writer) int {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(errOut, "hash-password: %v\n", err)
		return 1
	}
	hash, err := auth.Hash(strings.TrimRight(line, "\r\n"))
	if err != nil {
		fmt.Fprintf(errOut, "hash-password: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, hash)
	return 0
}
