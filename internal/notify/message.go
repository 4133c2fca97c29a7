package notify

import (
	"fmt"
	"strings"
	"time"
)

// Telegram 对单条消息长度有限制, 超出部分直接截断而不是分页 —
// 告警正文前 4KB 足够定位问题, 细节在审计库里。
const maxStructuredMessageLen = 3800

// MessageSection 是告警/报告正文里的一个段落: 可选小标题 + 若干条目。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 是所有出站通知的统一载体。告警和运行报告都先装进
// 这个结构, 再渲染成 Markdown 发出去。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown 渲染成 Telegram Markdown: 标题行、一个 ``` 代码块里的
// 全部段落、脚注和 UTC 时间戳, 超长截断。
func (m StructuredMessage) RenderMarkdown() string {
	parts := make([]string, 0, 4)
	if head := strings.TrimSpace(m.Icon + " " + m.Title); head != "" {
		parts = append(parts, head)
	}
	if block := m.codeBlock(); block != "" {
		parts = append(parts, block)
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		parts = append(parts, escapeFences(footer))
	}
	if !m.Timestamp.IsZero() {
		parts = append(parts, "时间："+m.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return clip(strings.Join(parts, "\n\n"), maxStructuredMessageLen)
}

// codeBlock joins every non-empty section into one fenced block. One fence
// for the whole message keeps the render stable under Telegram's parser.
func (m StructuredMessage) codeBlock() string {
	var rows []string
	for _, sec := range m.Sections {
		lines := compactLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if len(rows) > 0 {
			rows = append(rows, "")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			rows = append(rows, escapeFences(title))
		}
		for _, line := range lines {
			rows = append(rows, "- "+escapeFences(line))
		}
	}
	if len(rows) == 0 {
		return ""
	}
	return "```\n" + strings.Join(rows, "\n") + "\n```"
}

func compactLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// escapeFences 防止条目内容 (比如券商返回的原始错误) 提前闭合代码块。
func escapeFences(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// KV formats one "label: value" section line.
func KV(label string, value any) string {
	return fmt.Sprintf("%s: %v", label, value)
}
