// Package catalog 是 run 設定檔的目錄：哪些 run 存在、各自對應哪一個設定檔。
//
// 設定檔來源一律以 fs.FS 注入（go:embed 或 os.DirFS），且必須是扁平目錄。
package catalog

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/spec"
)

var (
	ErrDupID   = errs.NewFatal("duplicate run id")
	ErrDupName = errs.NewFatal("duplicate run name")
)

type Entry struct {
	RID        spec.RunID
	Name       string
	ConfigName string
}

// Summary 為對外列舉用的 run 摘要
type Summary struct {
	RID       spec.RunID          `json:"rid"`
	Name      string              `json:"name"`
	Functions []FunctionSummary   `json:"functions"`
	Sampler   spec.SamplerSetting `json:"sampler"`
}

type FunctionSummary struct {
	Name  string        `json:"name"`
	Logic spec.LogicKey `json:"logic"`
	Dim   int           `json:"dim"`
}

// NewSummary 由 RunSetting 建立摘要
func NewSummary(rs *spec.RunSetting) Summary {
	s := Summary{
		RID:       rs.RunID,
		Name:      rs.RunName,
		Functions: make([]FunctionSummary, len(rs.Functions)),
		Sampler:   rs.Sampler,
	}
	for i, f := range rs.Functions {
		s.Functions[i] = FunctionSummary{Name: f.Name, Logic: f.LogicKey, Dim: f.Dim}
	}
	return s
}

type Catalog struct {
	byID   map[spec.RunID]Entry
	byName map[string]Entry
	ids    []spec.RunID          // 用來穩定排序
	unique map[string]struct{} // 一組 run，檔名需唯一
	config *multiFS
	frozen bool
}

func New(cfg ...fs.FS) (*Catalog, error) {
	multFS, err := newMultiFS(cfg...)
	if err != nil {
		return nil, errs.Wrap(err, "can not create catalog")
	}
	return &Catalog{
		byID:   map[spec.RunID]Entry{},
		byName: map[string]Entry{},
		ids:    make([]spec.RunID, 0, 100),
		unique: map[string]struct{}{},
		config: multFS,
		frozen: false,
	}, nil
}

func (c *Catalog) Register(metas ...Entry) error {
	if c.frozen {
		return errs.NewWarn("can not register when catalog already frozen")
	}
	seenID := map[spec.RunID]struct{}{}
	seenName := map[string]struct{}{}
	seenCfg := map[string]struct{}{}
	metas = slices.Clone(metas)
	for i := range metas {
		metas[i].Name = strings.ToLower(strings.TrimSpace(metas[i].Name))
		meta := metas[i]
		if meta.Name == "" {
			return errs.NewFatal("run name required")
		}
		if err := validFileName(meta.ConfigName); err != nil {
			return err
		}
		if _, ok := c.config.index[meta.ConfigName]; !ok {
			return errs.NewFatal(fmt.Sprintf("config file not found: %s", meta.ConfigName))
		}
		if _, ok := c.byID[meta.RID]; ok {
			return ErrDupID
		}
		if _, ok := c.byName[meta.Name]; ok {
			return ErrDupName
		}
		if _, ok := c.unique[meta.ConfigName]; ok {
			return errs.NewFatal(fmt.Sprintf("duplicate config name: %s", meta.ConfigName))
		}
		if _, ok := seenID[meta.RID]; ok {
			return ErrDupID
		}
		if _, ok := seenName[meta.Name]; ok {
			return ErrDupName
		}
		if _, ok := seenCfg[meta.ConfigName]; ok {
			return errs.NewFatal(fmt.Sprintf("duplicate config name: %s", meta.ConfigName))
		}
		seenID[meta.RID] = struct{}{}
		seenName[meta.Name] = struct{}{}
		seenCfg[meta.ConfigName] = struct{}{}
	}
	for _, meta := range metas {
		c.unique[meta.ConfigName] = struct{}{}
		c.byID[meta.RID] = meta
		c.byName[meta.Name] = meta
		c.ids = append(c.ids, meta.RID)
	}
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })
	return nil
}

func (c *Catalog) GetByID(id spec.RunID) (Entry, bool) {
	m, ok := c.byID[id]
	return m, ok
}

func (c *Catalog) GetByName(name string) (Entry, bool) {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	m, ok := c.byName[name]
	return m, ok
}

func (c *Catalog) IDs() []spec.RunID {
	if len(c.ids) == 0 {
		return nil
	}
	return append([]spec.RunID(nil), c.ids...)
}

func (c *Catalog) All() []Entry {
	order := c.IDs()
	m := make([]Entry, 0, len(c.ids))
	for _, id := range order {
		if meta, ok := c.GetByID(id); ok {
			m = append(m, meta)
		}
	}
	return m
}

func (c *Catalog) Cfg() *multiFS {
	return c.config
}

func (c *Catalog) Freeze() {
	c.frozen = true
}

func (c *Catalog) IsFrozen() bool {
	return c.frozen
}

func validFileName(file string) error {
	if file == "" {
		return errs.NewFatal("empty config filename")
	}
	// 1) 不能包含路徑或類似字元
	if strings.ContainsAny(file, `/\:`) {
		return errs.NewFatal(fmt.Sprintf("invalid config filename: %q (must be a basename; no / \\\\ :) ", file))
	}
	// 2) 必須以 .yaml/.yml/.json 結尾（大小寫不敏感）
	lower := strings.ToLower(file)
	if !(strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".json")) {
		return errs.NewFatal(fmt.Sprintf("invalid config filename: %q (must end with .yaml, .yml, or .json)", file))
	}
	// 3) 不能以 . 開頭（防止直接 .yaml / .yml）
	if strings.HasPrefix(file, ".") {
		return errs.NewFatal(fmt.Sprintf("invalid config filename: %q (cannot start with '.')", file))
	}
	return nil
}

// ParseRunSettingByExt 依副檔名選擇 YAML / JSON 解析
func ParseRunSettingByExt(filename string, raw []byte) (*spec.RunSetting, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return spec.GetRunSettingByYAML(raw)
	case ".json":
		return spec.GetRunSettingByJSON(raw)
	default:
		return nil, errs.NewFatal(fmt.Sprintf("unsupported config format: %q", filename))
	}
}

// RunSettingByID 讀取 fs.FS 中的 YAML/JSON 設定、補預設值並執行基本檢查後回傳
func (c *Catalog) RunSettingByID(id spec.RunID) (*spec.RunSetting, error) {
	e, ok := c.GetByID(id)
	if !ok {
		return nil, errs.NewWarn("id does not exist in catalog")
	}
	return c.load(e)
}

// RunSettingByName 同 RunSettingByID，以名稱查詢（不分大小寫）
func (c *Catalog) RunSettingByName(name string) (*spec.RunSetting, error) {
	e, ok := c.GetByName(name)
	if !ok {
		return nil, errs.NewWarn("name does not exist in catalog")
	}
	return c.load(e)
}

func (c *Catalog) load(e Entry) (*spec.RunSetting, error) {
	src, ok := c.config.GetFS(e.ConfigName)
	if !ok {
		return nil, errs.NewWarn("file name does not exist in catalog")
	}
	raw, err := fs.ReadFile(src, e.ConfigName)
	if err != nil {
		return nil, errs.Wrap(err, "catalog read file error")
	}
	return ParseRunSettingByExt(e.ConfigName, raw)
}

type multiFS struct {
	src   []fs.FS
	index map[string]int // name -> src index
}

func newMultiFS(src ...fs.FS) (*multiFS, error) {
	if len(src) == 0 {
		return nil, errs.NewFatal("no fs provided")
	}
	for i, s := range src {
		if s == nil {
			return nil, errs.NewFatal(fmt.Sprintf("fs[%d] is nil", i))
		}
	}

	m := &multiFS{
		src:   src,
		index: make(map[string]int, 256),
	}

	// eager validate: build index and detect duplicates
	for i := 0; i < len(src); i++ {
		err := fs.WalkDir(src[i], ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				// 只允許根目錄 "."
				if path == "." {
					return nil
				}
				return errs.NewFatal(fmt.Sprintf("config FS must be flat (no subdirectories): %q", path))
			}

			// 只索引 yaml/json，其它檔案忽略
			lower := strings.ToLower(path)
			if !(strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".json")) {
				return nil
			}

			if prev, ok := m.index[path]; ok {
				return errs.NewFatal(fmt.Sprintf("duplicate config %q in fs[%d] and fs[%d]", path, prev, i))
			}
			m.index[path] = i
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *multiFS) GetFS(name string) (fs.FS, bool) {
	if id, ok := m.index[name]; ok {
		return m.src[id], ok
	}
	return nil, false
}

// Sources 回傳設定檔來源（唯讀走訪用）
func (m *multiFS) Sources() []fs.FS {
	if m == nil || len(m.src) == 0 {
		return nil
	}
	return append([]fs.FS(nil), m.src...)
}
