package spec

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/zintix-labs/acdc/errs"
	"gopkg.in/yaml.v3"
)

// RunID 是一組取樣設定在 catalog 中的編號
type RunID uint

// LogicKey 對應 integrand.Registry 中的函數建構器
type LogicKey string

// 取樣器預設值
const (
	DefaultEps         = 100 * 2.220446049250313e-16
	DefaultMargin      = 1.1
	DefaultNTry        = 100
	DefaultMaxTry      = 10000
	DefaultCheapRandom = false
)

// RunSetting 描述一次取樣：要註冊哪些函數，以及取樣器參數。
type RunSetting struct {
	RunName   string            `yaml:"run_name"   json:"run_name"`
	RunID     RunID             `yaml:"run_id"     json:"run_id"`
	Functions []FunctionSetting `yaml:"functions"  json:"functions"`
	Sampler   SamplerSetting    `yaml:"sampler"    json:"sampler"`
}

// FunctionSetting 為單一被取樣函數的設定，Params 交由各建構器以 DecodeParams 解析。
type FunctionSetting struct {
	Name     string         `yaml:"name"       json:"name"`
	LogicKey LogicKey       `yaml:"logic_key"  json:"logic_key"`
	Dim      int            `yaml:"dim"        json:"dim"`
	Params   map[string]any `yaml:"params"     json:"params"`
}

// SamplerSetting 對應 acdc.Generator 的設定；零值欄位會在 init 時補上預設值。
type SamplerSetting struct {
	Eps         float64 `yaml:"eps"           json:"eps"`
	Margin      float64 `yaml:"margin"        json:"margin"`
	NTry        int     `yaml:"n_try"         json:"n_try"`
	MaxTry      int     `yaml:"max_try"       json:"max_try"`
	CheapRandom bool    `yaml:"cheap_random"  json:"cheap_random"`
}

// DefaultSamplerSetting 回傳全部為預設值的設定
func DefaultSamplerSetting() SamplerSetting {
	return SamplerSetting{
		Eps:         DefaultEps,
		Margin:      DefaultMargin,
		NTry:        DefaultNTry,
		MaxTry:      DefaultMaxTry,
		CheapRandom: DefaultCheapRandom,
	}
}

// GetRunSettingByYAML
// 會讀取 YAML 設定、補上預設值並執行基本檢查後回傳
func GetRunSettingByYAML(data []byte) (*RunSetting, error) {
	rs := &RunSetting{}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, errs.Wrap(err, "failed to unmarshall yaml")
	}
	if err := rs.init(); err != nil {
		return nil, errs.Wrap(err, "run setting initialized err")
	}
	return rs, nil
}

// GetRunSettingByJSON
// 會讀取 Json 設定、補上預設值並執行基本檢查後回傳
func GetRunSettingByJSON(data []byte) (*RunSetting, error) {
	rs := &RunSetting{}
	if err := json.Unmarshal(data, rs); err != nil {
		return nil, errs.Wrap(err, "can not unmarshall json byte")
	}
	if err := rs.init(); err != nil {
		return nil, errs.Wrap(err, "run setting initialized err")
	}
	return rs, nil
}

func (rs *RunSetting) init() error {
	rs.Sampler.fillDefaults()
	for i := range rs.Functions {
		if rs.Functions[i].Name == "" {
			rs.Functions[i].Name = fmt.Sprintf("%s#%d", rs.Functions[i].LogicKey, i)
		}
	}
	return rs.valid()
}

func (s *SamplerSetting) fillDefaults() {
	if s.Eps == 0 {
		s.Eps = DefaultEps
	}
	if s.Margin == 0 {
		s.Margin = DefaultMargin
	}
	if s.NTry == 0 {
		s.NTry = DefaultNTry
	}
	if s.MaxTry == 0 {
		s.MaxTry = DefaultMaxTry
	}
}

// Valid 檢查取樣器參數範圍
func (s SamplerSetting) Valid() error {
	if !(s.Eps > 0) || math.IsInf(s.Eps, 0) {
		return errs.NewFatal(fmt.Sprintf("invalid eps: %v", s.Eps))
	}
	if !(s.Margin >= 1) || math.IsInf(s.Margin, 0) {
		return errs.NewFatal(fmt.Sprintf("invalid margin: %v (must be >= 1)", s.Margin))
	}
	if s.NTry < 1 {
		return errs.NewFatal(fmt.Sprintf("invalid n_try: %d", s.NTry))
	}
	if s.MaxTry < s.NTry {
		return errs.NewFatal(fmt.Sprintf("invalid max_try: %d (must be >= n_try %d)", s.MaxTry, s.NTry))
	}
	return nil
}

// valid 執行最基本的設定檔檢查
func (rs *RunSetting) valid() error {
	if rs.RunName == "" {
		return errs.NewFatal("empty run_name")
	}
	if len(rs.Functions) == 0 {
		return errs.NewFatal(fmt.Sprintf("run_name: %s err:empty functions", rs.RunName))
	}
	seen := make(map[string]struct{}, len(rs.Functions))
	for _, f := range rs.Functions {
		if f.LogicKey == "" {
			return errs.NewFatal(fmt.Sprintf("run_name: %s err:empty logic_key", rs.RunName))
		}
		if f.Dim < 1 {
			return errs.Wrap(errs.ErrBadDim, fmt.Sprintf("run_name: %s function %s dim=%d", rs.RunName, f.Name, f.Dim))
		}
		if _, ok := seen[f.Name]; ok {
			return errs.NewFatal(fmt.Sprintf("run_name: %s err:duplicate function name %s", rs.RunName, f.Name))
		}
		seen[f.Name] = struct{}{}
	}
	return rs.Sampler.Valid()
}
