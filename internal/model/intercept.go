package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// InterceptedResponse 是注入脚本在 after-response 钩子里转发过来的内容。
// XHR 拦截拿到的 data 是响应文本 (JSON 字符串)，fetch 拦截可能直接给出对象，两种都接受。
type InterceptedResponse struct {
	FinalURL string          `json:"finalUrl" binding:"required"`
	Data     json.RawMessage `json:"data"`
}

// Body 返回响应体本身的 JSON 字节。
func (r InterceptedResponse) Body() ([]byte, error) {
	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: empty response body", ErrMalformedPayload)
	}
	if data[0] != '"' {
		return data, nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return nil, fmt.Errorf("%w: response text: %v", ErrMalformedPayload, err)
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: response text is not JSON", ErrMalformedPayload)
	}
	return []byte(text), nil
}
