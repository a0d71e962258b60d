package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/config"
	"github.com/runtime-guard/runtime-guard-go/internal/detector"
	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/engine"
	"github.com/runtime-guard/runtime-guard-go/internal/gate"
)

// 一次性检测工具：执行一轮扫描后把报告 JSON 输出到标准输出。
// 日志走标准错误，方便脚本直接管道消费报告。
// 退出码：0 环境干净，1 存在异常信号。
func main() {
	var (
		profileFlag = flag.String("profile", "full", "检测档位 full / quick")
		configPath  = flag.String("config", "", "配置文件路径，缺省使用内置默认值")
		timeoutFlag = flag.Int("timeout", 60, "整体扫描超时（秒）")
		verbose     = flag.Bool("v", false, "输出检测器执行日志")
	)
	flag.Parse()

	profile := domain.ScanProfile(*profileFlag)
	if !profile.IsValid() {
		log.Fatalf("无效的检测档位: %s（仅支持 full / quick）", *profileFlag)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.InfoLevel)
	}

	opts := engine.BuildOptions{}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		opts = engine.BuildOptions{
			DetectorTimeout: time.Duration(cfg.Engine.DetectorTimeout) * time.Second,
			CommandTimeout:  time.Duration(cfg.Engine.CommandTimeout) * time.Second,
			ProcRoot:        cfg.Engine.ProcRoot,
			FDCheckEnable:   cfg.Engine.FDCheckEnable,
			Gate: gate.Config{
				ProcessName:  cfg.Guard.ProcessName,
				ModulePrefix: cfg.Guard.ModulePrefix,
				PathPrefixes: cfg.Guard.PathPrefixes,
			},
			Integrity: detector.IntegrityConfig{
				PackageName:       cfg.Integrity.PackageName,
				ExpectedSignature: cfg.Integrity.ExpectedSignature,
				EnforceSignature:  cfg.Integrity.EnforceSignature,
				AllowedInstallers: cfg.Integrity.AllowedInstallers,
			},
		}
	}

	eng := engine.BuildDefault(opts, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutFlag)*time.Second)
	defer cancel()

	report := eng.Run(ctx, profile)

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal report: %v", err)
	}
	fmt.Println(string(output))

	if abnormal := report.AbnormalCount(); abnormal > 0 {
		fmt.Fprintf(os.Stderr, "⚠️ 检测到 %d 条异常信号: %v\n", abnormal, report.AbnormalCategories())
		os.Exit(1)
	}
}
