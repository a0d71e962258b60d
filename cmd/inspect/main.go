package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/journal"
)

// 离线取证工具：直接读取报告日志 reports.jsonl 做统计，
// 不依赖数据库。宿主被篡改后数据库可能已不可信，日志
// 文件是最后一份证据。
func main() {
	var (
		dirFlag  = flag.String("dir", "./data/reports", "报告日志目录")
		lastFlag = flag.Int("last", 5, "展示最近 N 条异常报告明细")
	)
	flag.Parse()

	path := filepath.Join(*dirFlag, journal.FileName)

	total, err := journal.Count(path)
	if err != nil {
		log.Fatalf("Failed to read journal: %v", err)
	}

	var (
		abnormalReports int
		errorSignals    int
		byCategory      = make(map[string]int)
		recent          []*domain.Report
	)

	err = journal.Replay(path, func(report *domain.Report) error {
		if report.ErrorCount() > 0 {
			errorSignals += report.ErrorCount()
		}
		if report.IsClean {
			return nil
		}

		abnormalReports++
		for _, item := range report.Items {
			if item.IsAbnormal {
				byCategory[string(item.Category)]++
			}
		}

		recent = append(recent, report)
		if len(recent) > *lastFlag {
			recent = recent[1:]
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to replay journal: %v", err)
	}

	fmt.Printf("报告日志: %s\n", path)
	fmt.Printf("报告总数: %d，异常报告: %d，检测器错误信号: %d\n\n", total, abnormalReports, errorSignals)

	if len(byCategory) == 0 {
		fmt.Println("✅ 未发现异常信号")
		return
	}

	// 按命中次数排序输出类别分布
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		return byCategory[categories[i]] > byCategory[categories[j]]
	})

	fmt.Println("异常类别分布:")
	for _, category := range categories {
		fmt.Printf("  %-20s %d 次  (%s)\n", category, byCategory[category], domain.SignalCategory(category).GetDisplayName())
	}

	fmt.Printf("\n最近 %d 条异常报告:\n", len(recent))
	for _, report := range recent {
		fmt.Printf("  ⚠️ %s  profile=%s  异常=%d  %s\n",
			report.ID,
			report.Profile,
			report.AbnormalCount(),
			report.Timestamp.Format("2006-01-02 15:04:05"),
		)
		for _, item := range report.Items {
			if item.IsAbnormal {
				fmt.Printf("      - [%s] %s\n", item.Category, item.Description)
			}
		}
	}
}
