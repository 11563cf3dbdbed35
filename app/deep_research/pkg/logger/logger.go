package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log 全局日志实例，包初始化时给出一个默认实例，InitLogger 会替换它
var Log = newLogger(logrus.InfoLevel, "text", os.Stderr)

// CustomFormatter 自定义日志格式: [TIME] [LEVEL] [FILE:LINE] MSG key=value...
type CustomFormatter struct{}

// Format 实现 logrus.Formatter 接口
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var fileLine string
	if entry.HasCaller() {
		fileLine = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] [%s] %s",
		entry.Time.Format("2006-01-02 15:04:05"), level, fileLine, entry.Message)

	// 结构化字段按键排序追加，保证输出稳定
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, entry.Data[k])
		}
	}
	sb.WriteByte('\n')

	return []byte(sb.String()), nil
}

func newLogger(level logrus.Level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetReportCaller(true)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		l.SetFormatter(&CustomFormatter{})
	}
	l.SetLevel(level)
	l.SetOutput(out)
	return l
}

// InitLogger 初始化日志，filePath 非空时同时写入文件
func InitLogger(levelStr, filePath string, format ...string) error {
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// stdout 留给报告输出
	writers := []io.Writer{os.Stderr}
	if filePath != "" {
		if logDir := filepath.Dir(filePath); logDir != "." {
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		writers = append(writers, file)
	}

	f := "text"
	if len(format) > 0 && format[0] != "" {
		f = format[0]
	}
	Log = newLogger(level, f, io.MultiWriter(writers...))
	return nil
}

// Stage 返回带有流水线阶段字段的日志条目
func Stage(name string) *logrus.Entry {
	return Log.WithField("stage", name)
}
