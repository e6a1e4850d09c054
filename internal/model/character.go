package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload 表示拦截到的响应体无法解析或缺少必要字段。
var ErrMalformedPayload = errors.New("malformed payload")

// CharacterInfo 对应 character info 接口的响应体。
type CharacterInfo struct {
	Character *Character `json:"character"`
	Extra     Extra      `json:"-"`
}

// Character 是角色的公开资料，除 name 外的字段原样保留。
type Character struct {
	Name  string `json:"name"`
	Extra Extra  `json:"-"`
}

// EntityID 返回角色名，作为缓存条目的键。
func (i *CharacterInfo) EntityID() string {
	if i.Character == nil {
		return ""
	}
	return i.Character.Name
}

// DecodeCharacterInfo 解析并校验 character info 响应体。
func DecodeCharacterInfo(data []byte) (*CharacterInfo, error) {
	var info CharacterInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: character info: %v", ErrMalformedPayload, err)
	}
	if info.EntityID() == "" {
		return nil, fmt.Errorf("%w: character.name is missing", ErrMalformedPayload)
	}
	return &info, nil
}

func (i *CharacterInfo) UnmarshalJSON(data []byte) error {
	type plain CharacterInfo
	if err := json.Unmarshal(data, (*plain)(i)); err != nil {
		return err
	}
	extra, err := collectExtra(data, "character")
	i.Extra = extra
	return err
}

func (i CharacterInfo) MarshalJSON() ([]byte, error) {
	type plain CharacterInfo
	return mergeExtra(plain(i), i.Extra)
}

func (c *Character) UnmarshalJSON(data []byte) error {
	type plain Character
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	extra, err := collectExtra(data, "name")
	c.Extra = extra
	return err
}

func (c Character) MarshalJSON() ([]byte, error) {
	type plain Character
	return mergeExtra(plain(c), c.Extra)
}
