package stats

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// StatReportRender 定義輸出行為
type StatReportRender interface {
	Write(w io.Writer, r *StatReport) error
}

// Json渲染
type JsonStatReportRender struct{}

func (jr *JsonStatReportRender) Write(w io.Writer, r *StatReport) error {
	return json.NewEncoder(w).Encode(r)
}

// YAML渲染
type YAMLStatReportRender struct{}

func (yr *YAMLStatReportRender) Write(w io.Writer, r *StatReport) error {
	return WriteYAML(w, r)
}

// 表格渲染（與 StdOut 相同格式，但不含耗時）
type TableStatReportRender struct{}

func (tr *TableStatReportRender) Write(w io.Writer, r *StatReport) error {
	sk, sm := r.fmtBasic()
	fk, fm := r.fmtFunctions()
	_, err := fmt.Fprintln(w, fmtTable(r.Summary.RunName, sk, sm)+fmtTable("Functions", fk, fm))
	return err
}

// RenderOf 依格式名稱取得 renderer：json / yaml / table
func RenderOf(format string) (StatReportRender, error) {
	switch format {
	case "json":
		return &JsonStatReportRender{}, nil
	case "yaml", "yml":
		return &YAMLStatReportRender{}, nil
	case "table", "":
		return &TableStatReportRender{}, nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// WriteYAML 輸出 YAML：最內層的一維陣列（例如點座標、盒子邊界）以 flow style [a, b] 輸出，外層維持展開。
func WriteYAML[T any](w io.Writer, t *T) error {
	var node yaml.Node
	if err := node.Encode(t); err != nil {
		return err
	}
	styleReadableSequences(&node)

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(&node)
}

func styleReadableSequences(n *yaml.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.DocumentNode, yaml.MappingNode:
		for _, c := range n.Content {
			styleReadableSequences(c)
		}
	case yaml.SequenceNode:
		// 含子 sequence 或 mapping 的為外層，保持 block
		leaf := true
		for _, c := range n.Content {
			if c != nil && (c.Kind == yaml.SequenceNode || c.Kind == yaml.MappingNode) {
				leaf = false
			}
			styleReadableSequences(c)
		}
		if leaf {
			n.Style = yaml.FlowStyle
		}
	}
}
