package main

import (
	"flag"
	"fmt"
	"os"

	"autogate/internal/app"
	"autogate/internal/shared/config"
	"autogate/internal/shared/logger"
)

func main() {
	configPath := flag.String("config", "configs/autogate.ini", "Path to autogate.ini")
	flag.Parse()

	// 1. 加载配置 (文件可选，环境变量 PORT 优先)
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 3. 创建并运行服务器
	app.New(cfg).Run()
}
