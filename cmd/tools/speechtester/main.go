// Command speechtester runs the media extraction backends on local files:
// speech recognition for voice notes and text extraction for PDFs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/extract"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/speech"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := godotenv.Load(); err != nil {
		logger.Warn("无法加载 .env，改用系统环境变量", "error", err)
	}

	mode := flag.String("mode", "", "测试模式: asr 或 pdf")
	input := flag.String("file", "", "输入文件路径")
	mimeType := flag.String("mime", "", "音频 MIME 类型，默认按扩展名推断")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	if *input == "" || (*mode != "asr" && *mode != "pdf") {
		flag.Usage()
		fatal(logger, "请通过 -mode=asr|pdf 与 -file 指定输入")
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		fatal(logger, "读取文件失败", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, logger, data, *input, *mimeType)
	case "pdf":
		runPDF(logger, data)
	}
}

func runASR(ctx context.Context, logger *slog.Logger, data []byte, path, mimeType string) {
	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "配置加载失败", "error", err)
	}
	if !cfg.Speech.Enabled {
		fatal(logger, "语音服务未启用，请先配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}

	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	format, codec := speech.AudioFormat(mimeType)
	logger.Info("开始识别", "bytes", len(data), "mime", mimeType, "format", format, "codec", codec)

	started := time.Now()
	text, err := speech.NewService(cfg.Speech.ServiceConfig(), logger).Transcribe(ctx, data, mimeType)
	if err != nil {
		fatal(logger, "识别失败", "error", err)
	}
	logger.Info("识别完成", "elapsed", time.Since(started).Round(time.Millisecond))
	fmt.Println(text)
}

func runPDF(logger *slog.Logger, data []byte) {
	parser := extract.FitzParser{}
	text, err := parser.Text(data)
	if err != nil {
		fatal(logger, "PDF 文本提取失败", "error", err)
	}

	chars := utf8.RuneCountInString(strings.TrimSpace(text))
	if chars < extract.MinDocumentText {
		png, err := parser.RenderFirstPage(data)
		if err != nil {
			fatal(logger, "PDF 渲染失败", "error", err)
		}
		logger.Warn("文本层过短，线上会走视觉模型", "chars", chars, "png_bytes", len(png))
	}
	fmt.Println(text)
}

func fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}
