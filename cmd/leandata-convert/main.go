// leandata-convert 把旧编码（epoch 毫秒行）的报价归档升级为当前格式。
//
//	leandata-convert [flags] ARCHIVE.zip [ARCHIVE.zip ...]
//	leandata-convert -dir data/crypto/binance/daily
//
// 默认转换前在旁边留 .bak 备份，-no-backup 关闭。已是当前格式的
// 归档原样跳过，重复执行安全。
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"leandata/internal/migrate"
)

func main() {
	var (
		dir      = flag.String("dir", "", "递归转换目录下的全部 *_quote.zip")
		noBackup = flag.Bool("no-backup", false, "不保留 .bak 备份")
	)
	flag.Parse()

	paths := flag.Args()
	if *dir == "" && len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "用法: leandata-convert [-no-backup] ARCHIVE.zip ... 或 -dir 目录")
		os.Exit(2)
	}

	conv := migrate.NewConverter(!*noBackup)

	var results []migrate.Result
	if *dir != "" {
		out, err := conv.ConvertDir(*dir)
		if err != nil {
			log.Fatalf("扫描目录失败: %v", err)
		}
		results = append(results, out...)
	}
	for _, path := range paths {
		res, err := conv.ConvertArchive(path)
		if err != nil {
			res.File = path
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	var converted, skipped, failed int
	for _, res := range results {
		switch {
		case res.Error != "":
			failed++
			fmt.Printf("  ! %s: %s\n", res.File, res.Error)
		case res.Converted:
			converted++
			fmt.Printf("  + %s: %d 行", res.File, res.Rows)
			if res.SkippedRows > 0 {
				fmt.Printf("（丢弃 %d 坏行）", res.SkippedRows)
			}
			if res.BackupPath != "" {
				fmt.Printf("，备份 %s", res.BackupPath)
			}
			fmt.Println()
		default:
			skipped++
			fmt.Printf("  = %s: 已是当前格式\n", res.File)
		}
	}
	fmt.Printf("完成：转换 %d，跳过 %d，失败 %d\n", converted, skipped, failed)

	if failed > 0 {
		os.Exit(1)
	}
}
