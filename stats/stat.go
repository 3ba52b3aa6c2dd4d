package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/zintix-labs/acdc/spec"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
)

var lang language.Tag = language.English

// 信賴水準
const confidence = 0.95

// 信賴區間
type CI struct {
	Lo float64 `json:"Lo"`
	Hi float64 `json:"Hi"`
}

// FunctionSample 為單一 worker 中單一函數的原始計數
type FunctionSample struct {
	Attempted     int64   `json:"Attempted"`
	Accepted      int64   `json:"Accepted"`
	MaxInt        float64 `json:"MaxInt"`
	Compensations int     `json:"Compensations"`
}

// WorkerSample 為單一 worker（單一 Generator）結束時的原始計數
type WorkerSample struct {
	MaxInt        float64          `json:"MaxInt"`
	Attempted     int64            `json:"Attempted"`
	Accepted      int64            `json:"Accepted"`
	CompTrials    int64            `json:"CompTrials"` // 補償期間的嘗試次數
	Compensations int              `json:"Compensations"`
	Compensating  bool             `json:"Compensating"` // 結束時仍在補償
	Bins          int              `json:"Bins"`
	Depth         int              `json:"Depth"`
	Functions     []FunctionSample `json:"Functions"`
}

// Integral 回傳此 worker 的積分估計 MaxInt * Accepted / Attempted
func (w WorkerSample) Integral() float64 {
	if w.Attempted == 0 {
		return 0
	}
	return w.MaxInt * float64(w.Accepted) / float64(w.Attempted)
}

// IntegralErr 回傳此 worker 積分估計的二項標準誤差
func (w WorkerSample) IntegralErr() float64 {
	if w.Attempted == 0 {
		return 0
	}
	e := float64(w.Accepted) / float64(w.Attempted)
	return w.MaxInt * math.Sqrt(e*(1-e)/float64(w.Attempted))
}

// StatReport 取樣統計報告
type StatReport struct {
	Summary   *SummaryReport    `json:"Summary"`
	Functions []*FunctionReport `json:"Functions"`
	Tree      *TreeReport       `json:"Tree"`
	Workers   *WorkerReport     `json:"Workers,omitempty"`
	samples   []WorkerSample
	isDone    bool
}

type SummaryReport struct {
	RunName       string     `json:"RunName"`
	RunID         spec.RunID `json:"RunID"`
	Attempted     int64      `json:"Attempted"`
	Accepted      int64      `json:"Accepted"`
	Efficiency    float64    `json:"Efficiency"`
	EfficiencyCI  CI         `json:"EfficiencyCI"`
	MaxInt        float64    `json:"MaxInt"`
	Integral      float64    `json:"Integral"`
	IntegralErr   float64    `json:"IntegralErr"`
	IntegralCI    CI         `json:"IntegralCI"`
	Exact         *float64   `json:"Exact,omitempty"`
	Pull          *float64   `json:"Pull,omitempty"` // (Integral - Exact) / IntegralErr
	CompTrials    int64      `json:"CompTrials"`
	Compensations int        `json:"Compensations"`
	Provisional   bool       `json:"Provisional"` // 有 worker 結束時仍在補償
}

type FunctionReport struct {
	Name          string  `json:"Name"`
	Attempted     int64   `json:"Attempted"`
	Accepted      int64   `json:"Accepted"`
	MaxInt        float64 `json:"MaxInt"`
	Integral      float64 `json:"Integral"`
	Share         float64 `json:"Share"` // 接受點中屬於此函數的比例
	Compensations int     `json:"Compensations"`
}

type TreeReport struct {
	Bins  int `json:"Bins"`  // 各 worker 的平均葉節點數
	Depth int `json:"Depth"` // 各 worker 中最深的層數
}

// WorkerReport 多 worker 時各自積分估計的分散程度
type WorkerReport struct {
	Workers      int     `json:"Workers"`
	IntegralMean float64 `json:"IntegralMean"`
	IntegralStd  float64 `json:"IntegralStd"`
}

// NewStatReport 以各 worker 的原始計數建立報告；fnNames 的長度需與每個 sample 的函數數一致。
// exact 為已知的真值（不知道時傳 nil）。
func NewStatReport(runName string, id spec.RunID, fnNames []string, samples []WorkerSample, exact *float64) *StatReport {
	s := &StatReport{
		Summary:   &SummaryReport{RunName: runName, RunID: id, Exact: exact},
		Functions: make([]*FunctionReport, len(fnNames)),
		Tree:      &TreeReport{},
		samples:   samples,
	}
	for i, n := range fnNames {
		s.Functions[i] = &FunctionReport{Name: n}
	}
	return s
}

// ============================================================
// ** 公開方法 **
// ============================================================

// Done 把各 worker 的原始計數彙整成最終統計結果並鎖定 isDone 標記。
//
// 多個 worker 各自有不同的切割樹（MaxInt 不同），因此整體積分取各 worker 估計的平均，
// 誤差為 sqrt(sum err_i^2) / k。
func (s *StatReport) Done() {
	if s.isDone {
		return
	}
	k := len(s.samples)
	sum := s.Summary
	integrals := make([]float64, 0, k)
	errSq := 0.0
	bins := 0
	for _, w := range s.samples {
		sum.Attempted += w.Attempted
		sum.Accepted += w.Accepted
		sum.CompTrials += w.CompTrials
		sum.Compensations += w.Compensations
		sum.Provisional = sum.Provisional || w.Compensating
		sum.MaxInt += w.MaxInt
		integrals = append(integrals, w.Integral())
		errSq += w.IntegralErr() * w.IntegralErr()
		bins += w.Bins
		s.Tree.Depth = max(s.Tree.Depth, w.Depth)
		for i, f := range w.Functions {
			if i >= len(s.Functions) {
				break
			}
			fr := s.Functions[i]
			fr.Attempted += f.Attempted
			fr.Accepted += f.Accepted
			fr.MaxInt += f.MaxInt
			fr.Compensations += f.Compensations
			if w.Attempted > 0 {
				fr.Integral += w.MaxInt * float64(f.Accepted) / float64(w.Attempted)
			}
		}
	}
	if k > 0 {
		kf := float64(k)
		sum.MaxInt /= kf
		sum.Integral = stat.Mean(integrals, nil)
		sum.IntegralErr = math.Sqrt(errSq) / kf
		s.Tree.Bins = bins / k
		for _, fr := range s.Functions {
			fr.MaxInt /= kf
			fr.Integral /= kf
		}
	}
	if k > 1 {
		mean, std := stat.MeanStdDev(integrals, nil)
		s.Workers = &WorkerReport{Workers: k, IntegralMean: mean, IntegralStd: std}
	}
	for _, fr := range s.Functions {
		if sum.Accepted > 0 {
			fr.Share = float64(fr.Accepted) / float64(sum.Accepted)
		}
	}
	sum.Efficiency, sum.EfficiencyCI = proportionCICP(sum.Accepted, sum.Attempted, confidence)
	sum.IntegralCI = normalCI(sum.Integral, sum.IntegralErr)
	if sum.Exact != nil && sum.IntegralErr > 0 {
		pull := (sum.Integral - *sum.Exact) / sum.IntegralErr
		sum.Pull = &pull
	}
	s.isDone = true
}

func (s *StatReport) WriteWith(w io.Writer, rep StatReportRender) error {
	s.Done()
	return rep.Write(w, s)
}

// StdOut 以表格輸出摘要
func (s *StatReport) StdOut(ut time.Duration) {
	s.Done()
	fmt.Print(formatDuration(ut, s.Summary.Attempted))
	sk, sm := s.fmtBasic()
	fmt.Println(fmtTable(s.Summary.RunName, sk, sm))
	fk, fm := s.fmtFunctions()
	fmt.Println(fmtTable("Functions", fk, fm))
}

// ============================================================
// ** 內部方法 **
// ============================================================

func formatDuration(d time.Duration, trials int64) string {
	p := message.NewPrinter(lang)
	if d < 0 {
		d = -d
	}
	sec := d.Seconds()
	if sec <= 0 {
		sec = 1e-9
	}
	tps := int64(float64(trials) / sec)
	if sec < 60.0 {
		return p.Sprintf("used: %.2f seconds\ntps : %d trials/sec\n", sec, tps)
	}
	sc := int(d.Seconds()) % 60
	m := int(d.Minutes()) % 60
	h := int(d.Hours())
	if h == 0 {
		return p.Sprintf("used: %dm %ds\ntps : %d trials/sec\n", m, sc, tps)
	}
	return p.Sprintf("used: %dh:%dm:%ds\ntps : %d trials/sec\n", h, m, sc, tps)
}

func (s *StatReport) fmtBasic() ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	sum := s.Summary
	basic := map[string]string{
		"Run Name":      p.Sprintf("%s", sum.RunName),
		"Run ID":        fmt.Sprintf("%d", sum.RunID),
		"Attempted":     p.Sprintf("%d", sum.Attempted),
		"Accepted":      p.Sprintf("%d", sum.Accepted),
		"Efficiency":    p.Sprintf("%.4f %%", 100.0*sum.Efficiency),
		"Eff 95% CI":    p.Sprintf("[%.4f%%,%.4f%%]", 100.0*sum.EfficiencyCI.Lo, 100.0*sum.EfficiencyCI.Hi),
		"Max Integral":  p.Sprintf("%.6g", sum.MaxInt),
		"Integral":      p.Sprintf("%.6g ± %.2g", sum.Integral, sum.IntegralErr),
		"Integral CI":   p.Sprintf("[%.6g,%.6g]", sum.IntegralCI.Lo, sum.IntegralCI.Hi),
		"Compensations": p.Sprintf("%d", sum.Compensations),
		"Comp Trials":   p.Sprintf("%d", sum.CompTrials),
		"Provisional":   fmt.Sprintf("%v", sum.Provisional),
		"Bins / Depth":  p.Sprintf("%d / %d", s.Tree.Bins, s.Tree.Depth),
	}
	keys := []string{"Run Name", "Run ID", "Attempted", "Accepted", "Efficiency", "Eff 95% CI", "Max Integral", "Integral", "Integral CI"}
	if sum.Exact != nil {
		basic["Exact"] = p.Sprintf("%.6g", *sum.Exact)
		keys = append(keys, "Exact")
	}
	if sum.Pull != nil {
		basic["Pull"] = p.Sprintf("%.2f", *sum.Pull)
		keys = append(keys, "Pull")
	}
	if s.Workers != nil {
		basic["Workers"] = p.Sprintf("%d (std %.3g)", s.Workers.Workers, s.Workers.IntegralStd)
		keys = append(keys, "Workers")
	}
	keys = append(keys, "Compensations", "Comp Trials", "Provisional", "Bins / Depth")
	return keys, basic
}

func (s *StatReport) fmtFunctions() ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	keys := make([]string, 0, len(s.Functions))
	msg := make(map[string]string, len(s.Functions))
	for _, f := range s.Functions {
		keys = append(keys, f.Name)
		msg[f.Name] = p.Sprintf("I=%.6g  share=%.2f%%  n=%d  comp=%d", f.Integral, 100*f.Share, f.Accepted, f.Compensations)
	}
	return keys, msg
}

func fmtTable(title string, keys []string, msg map[string]string) string {
	p := message.NewPrinter(lang)
	maxKeyLen := runewidth.StringWidth(title)
	maxValLen := 0
	for k, m := range msg {
		if w := runewidth.StringWidth(k); w > maxKeyLen {
			maxKeyLen = w
		}
		if w := runewidth.StringWidth(m); w > maxValLen {
			maxValLen = w
		}
	}
	maxKeyLen += 2
	maxValLen += 2

	divider := "+" + strings.Repeat("-", maxKeyLen) + "+" + strings.Repeat("-", maxValLen) + "+\n"
	top := "+" + strings.Repeat("-", maxKeyLen+1+maxValLen) + "+\n"

	totalInner := maxKeyLen + maxValLen + 1
	titleW := runewidth.StringWidth(title)

	left := (totalInner - titleW) / 2
	right := totalInner - titleW - left

	var sb strings.Builder
	sb.WriteString(top)
	sb.WriteString(p.Sprintf("|%s%s%s|\n", blank(left), title, blank(right)))
	sb.WriteString(divider)
	for _, k := range keys {
		sb.WriteString(p.Sprintf("| %s%s | %s%s |\n", k, blank(maxKeyLen-2-runewidth.StringWidth(k)), msg[k], blank(maxValLen-2-runewidth.StringWidth(msg[k]))))
	}
	sb.WriteString(divider)
	return sb.String()
}

func blank(w int) string {
	if w < 1 {
		return ""
	}
	return strings.Repeat(" ", w)
}
