// cvparse 在本地文件上运行与服务端相同的批处理流程
//
//	cvparse -c config.yaml --output summary a.pdf b.docx
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cv-agent-go/internal/api/handler"
	"cv-agent-go/internal/config"
	appCoreLogger "cv-agent-go/internal/logger"
	"cv-agent-go/internal/processor"
	"cv-agent-go/internal/types"

	"github.com/spf13/pflag"
)

// 输出内容
const (
	outputCorpus   = "corpus"
	outputWarnings = "warnings"
	outputSummary  = "summary"
)

type options struct {
	configPath string
	strategy   string
	output     string
	timeout    time.Duration
	verbose    bool
}

func main() {
	opts := options{}
	pflag.StringVarP(&opts.configPath, "config", "c", "", "Path to config file")
	pflag.StringVarP(&opts.strategy, "strategy", "s", "", "Structured parse strategy: regex or llm (overrides config)")
	pflag.StringVarP(&opts.output, "output", "o", outputSummary, "What to print: corpus, warnings or summary")
	pflag.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Timeout for the whole batch")
	pflag.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] FILE...\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if err := run(opts, pflag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, paths []string, out io.Writer) error {
	switch opts.output {
	case outputCorpus, outputWarnings, outputSummary:
	default:
		return fmt.Errorf("未知的输出类型 %q (可选 corpus / warnings / summary)", opts.output)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.strategy != "" {
		cfg.ParserStrategy = opts.strategy
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	level := cfg.Logger.Level
	if opts.verbose {
		level = "debug"
	}
	// 日志写标准错误，标准输出只留给结果
	appCoreLogger.Init(appCoreLogger.Config{Level: level, Format: "pretty", TimeFormat: "15:04:05", Output: os.Stderr})

	files, err := readFiles(paths)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	extractors, err := processor.BuildExtractors(ctx, cfg)
	if err != nil {
		return err
	}
	builder, err := processor.BuildRecordBuilder(ctx, cfg)
	if err != nil {
		return err
	}
	proc, err := processor.NewCVProcessor(processor.Components{Extractors: extractors, Builder: builder})
	if err != nil {
		return err
	}

	result, err := proc.ProcessBatch(ctx, files)
	if errors.Is(err, processor.ErrEmptyBatch) {
		return errors.New("没有指定任何文件")
	}
	if err != nil {
		return err
	}
	return render(out, opts.output, result)
}

func readFiles(paths []string) ([]types.UploadedFile, error) {
	files := make([]types.UploadedFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("读取文件 %s 失败: %w", p, err)
		}
		files = append(files, types.UploadedFile{Filename: filepath.Base(p), Data: data})
	}
	return files, nil
}

func render(out io.Writer, output string, result *processor.BatchResult) error {
	switch output {
	case outputCorpus:
		_, err := fmt.Fprintln(out, result.Corpus.JoinedText)
		return err
	case outputWarnings:
		warnings := result.Warnings
		if warnings == nil {
			warnings = []processor.Warning{}
		}
		return writeJSON(out, warnings)
	default:
		items := make([]handler.SummaryItem, 0, len(result.Corpus.Records))
		for _, record := range result.Corpus.Records {
			pretty, err := handler.PrettyRecord(record)
			if err != nil {
				return err
			}
			items = append(items, handler.SummaryItem{Raw: record, PrettyJSON: pretty})
		}
		return writeJSON(out, items)
	}
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
