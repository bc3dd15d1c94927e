package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/argus/internal/agent"
	"github.com/nextlevelbuilder/argus/internal/providers"
)

var guiKeywords = []string{
	"打开", "点击", "拖拽", "窗口", "界面", "按钮", "菜单",
	"截图", "屏幕", "鼠标", "键盘输入", "应用", "程序",
	"浏览器", "文件夹", "桌面", "任务栏",
	"open", "click", "drag", "window", "button", "menu",
	"screenshot", "screen", "mouse", "browser", "desktop", "taskbar",
}

var codeKeywords = []string{
	"计算", "算法", "函数", "变量", "循环", "判断",
	"数据处理", "文件读写", "json", "csv", "api",
	"数学", "统计", "绘图", "分析数据", "print",
	"代码", "脚本", "程序设计",
	"calculate", "compute", "algorithm", "function", "script",
	"parse", "statistics", "plot", "dataframe", "regex",
}

const (
	keywordBase    = 0.6
	keywordStep    = 0.1
	keywordCeiling = 0.95

	defaultStrategyConfidence = 0.5
	labelOnlyConfidence       = 0.7
)

var (
	guiLabelRe  = regexp.MustCompile(`GUI:?\s*([\d.]+)`)
	codeLabelRe = regexp.MustCompile(`CODE:?\s*([\d.]+)`)
	leadLabelRe = regexp.MustCompile(`^[^A-Z]*(GUI|CODE)\b`)
)

const classifyPrompt = `Decide which agent should handle the task below.

Task: %s

Agents:
1. GUI - operates the desktop: opening applications, clicking buttons, typing text, managing windows.
2. CODE - executes code: calculations, file processing, algorithms, data analysis.

Answer with exactly one label and a confidence between 0 and 1:
- "GUI:<confidence>" (for example "GUI:0.9")
- "CODE:<confidence>" (for example "CODE:0.85")

Answer:`

// Decision is the strategy picked for a task.
type Decision struct {
	Strategy   string
	Confidence float64
	Source     string // "keywords", "llm" or "default"
}

// Analyzer picks a strategy with a keyword heuristic and, on a tie, one
// classification call to the LLM.
type Analyzer struct {
	provider providers.Provider // nil = no tie-break, default to GUI
	model    string
}

func NewAnalyzer(p providers.Provider, model string) *Analyzer {
	return &Analyzer{provider: p, model: model}
}

// Analyze never fails; every failure path lands on the GUI strategy at 0.5.
func (a *Analyzer) Analyze(ctx context.Context, task string) Decision {
	lower := strings.ToLower(task)
	gui, code := countKeywords(lower, guiKeywords), countKeywords(lower, codeKeywords)

	switch {
	case gui > code:
		return Decision{Strategy: agent.StrategyGUI, Confidence: keywordConfidence(gui), Source: "keywords"}
	case code > gui:
		return Decision{Strategy: agent.StrategyCode, Confidence: keywordConfidence(code), Source: "keywords"}
	}

	slog.Info("orchestrator: keywords tied, asking llm", "gui", gui, "code", code)
	return a.classify(ctx, task)
}

func (a *Analyzer) classify(ctx context.Context, task string) Decision {
	fallback := Decision{Strategy: agent.StrategyGUI, Confidence: defaultStrategyConfidence, Source: "default"}
	if a.provider == nil {
		return fallback
	}

	model := a.model
	if model == "" {
		model = a.provider.DefaultModel()
	}
	resp, err := a.provider.Chat(ctx, providers.ChatRequest{
		Model:       model,
		Messages:    []providers.Message{{Role: "user", Content: fmt.Sprintf(classifyPrompt, task)}},
		Temperature: providers.Float(0.3),
	})
	if err != nil {
		slog.Error("orchestrator: classification call failed", "error", err)
		return fallback
	}

	d, ok := ParseLabel(resp.Content)
	if !ok {
		slog.Warn("orchestrator: unparseable classification", "answer", resp.Content)
		return fallback
	}
	return d
}

// ParseLabel parses a "LABEL:confidence" answer. The label the answer starts
// with wins; otherwise the one mentioned first. A label without a number gets
// confidence 0.7.
func ParseLabel(answer string) (Decision, bool) {
	upper := strings.ToUpper(strings.TrimSpace(answer))

	label := ""
	if m := leadLabelRe.FindStringSubmatch(upper); m != nil {
		label = m[1]
	} else {
		gui, code := strings.Index(upper, "GUI"), strings.Index(upper, "CODE")
		switch {
		case gui >= 0 && (code < 0 || gui < code):
			label = "GUI"
		case code >= 0:
			label = "CODE"
		}
	}

	strategy, re := agent.StrategyGUI, guiLabelRe
	switch label {
	case "GUI":
	case "CODE":
		strategy, re = agent.StrategyCode, codeLabelRe
	default:
		return Decision{}, false
	}

	conf := labelOnlyConfidence
	if m := re.FindStringSubmatch(upper); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 0 && v <= 1 {
			conf = v
		}
	}
	return Decision{Strategy: strategy, Confidence: conf, Source: "llm"}, true
}

func countKeywords(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func keywordConfidence(n int) float64 {
	return min(keywordBase+keywordStep*float64(n), keywordCeiling)
}
