package model

import "encoding/json"

// Extra 保存结构体没有声明的 JSON 字段。上游接口字段很多，
// 我们只关心少数几个，其余字段必须原样写回导出文件。
type Extra map[string]json.RawMessage

// collectExtra 解析 data 中除 known 以外的所有字段。
func collectExtra(data []byte, known ...string) (Extra, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return Extra(all), nil
}

// mergeExtra 序列化 v，并把 extra 中 v 未输出的字段补回去。
func mergeExtra(v interface{}, extra Extra) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := out[k]; !ok {
			out[k] = raw
		}
	}
	return json.Marshal(out)
}
