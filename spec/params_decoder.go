package spec

import (
	"bytes"

	"github.com/zintix-labs/acdc/errs"
	"gopkg.in/yaml.v3"
)

// DecodeParams 會把 fs.Params 由 map[string]any 轉成你要的型別 T。
// T 應該是 struct，例如 GaussParams。Params 為空時 out 保持原值（可先填預設值）。
func DecodeParams[T any](fs *FunctionSetting, out *T) error {
	if len(fs.Params) == 0 {
		return nil
	}
	// 先把 map[string]any -> YAML bytes
	bs, err := yaml.Marshal(fs.Params)
	if err != nil {
		return errs.Wrap(err, "spec.params_decoder : marshal failed")
	}
	// 再把 YAML bytes -> 自定義的型別
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true) // 嚴格檢查：多寫/拼錯欄位就報錯
	if err = dec.Decode(out); err != nil {
		return errs.Wrap(err, "spec.params_decoder : decode failed")
	}
	return nil
}
