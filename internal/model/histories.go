// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"fmt"
)

// CharacterHistories 对应 histories 接口的响应体：同一个角色与同一个用户之间的全部对话。
type CharacterHistories struct {
	Histories []*History `json:"histories"`
	Extra     Extra      `json:"-"`
}

// History 是一次对话，消息按时间先后排列，第一条通常是角色的开场白。
type History struct {
	Msgs  []*Message `json:"msgs"`
	Extra Extra      `json:"-"`
}

// Message 是单条消息。src 是说话方，tgt 是接收方；
// 用户发言时 src 是用户，角色发言时 tgt 是用户。
type Message struct {
	Text        string       `json:"text"`
	DisplayName string       `json:"display_name"`
	Src         *Participant `json:"src,omitempty"`
	Tgt         *Participant `json:"tgt,omitempty"`
	Extra       Extra        `json:"-"`
}

// Participant 是对话一方的身份信息。
type Participant struct {
	Name    string `json:"name"`
	IsHuman bool   `json:"is_human"`
	User    *User  `json:"user,omitempty"`
	Extra   Extra  `json:"-"`
}

// User 是参与方背后的账号。
type User struct {
	Username  string   `json:"username"`
	FirstName string   `json:"first_name"`
	Name      string   `json:"name"`
	Account   *Account `json:"account,omitempty"`
	Extra     Extra    `json:"-"`
}

// Account 只关心展示名。
type Account struct {
	Name  string `json:"name"`
	Extra Extra  `json:"-"`
}

// IsHuman 报告这条消息是否由用户本人发出。
func (m *Message) IsHuman() bool {
	return m.Src != nil && m.Src.IsHuman
}

// HumanParticipant 返回代表用户的那一方。
func (m *Message) HumanParticipant() *Participant {
	if m.IsHuman() {
		return m.Src
	}
	return m.Tgt
}

// EntityID 返回这批对话所属的角色名：第一段对话第一条消息的 src.name。
// 必须在脱敏之前读取。
func (h *CharacterHistories) EntityID() string {
	if len(h.Histories) == 0 || len(h.Histories[0].Msgs) == 0 || h.Histories[0].Msgs[0].Src == nil {
		return ""
	}
	return h.Histories[0].Msgs[0].Src.Name
}

// MessageCount 统计所有对话中的消息数。
func (h *CharacterHistories) MessageCount() int {
	n := 0
	for _, history := range h.Histories {
		n += len(history.Msgs)
	}
	return n
}

// DecodeCharacterHistories 解析并校验 histories 响应体。
func DecodeCharacterHistories(data []byte) (*CharacterHistories, error) {
	var h CharacterHistories
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: histories: %v", ErrMalformedPayload, err)
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

// Validate 检查脱敏流程依赖的结构是否完整。
func (h *CharacterHistories) Validate() error {
	if len(h.Histories) == 0 {
		return fmt.Errorf("%w: histories is empty", ErrMalformedPayload)
	}
	for i, history := range h.Histories {
		if history == nil {
			return fmt.Errorf("%w: histories[%d] is null", ErrMalformedPayload, i)
		}
		for j, msg := range history.Msgs {
			if msg == nil {
				return fmt.Errorf("%w: histories[%d].msgs[%d] is null", ErrMalformedPayload, i, j)
			}
			if msg.Src == nil {
				return fmt.Errorf("%w: histories[%d].msgs[%d] has no src", ErrMalformedPayload, i, j)
			}
			if !msg.IsHuman() && msg.Tgt == nil {
				return fmt.Errorf("%w: histories[%d].msgs[%d] has no tgt", ErrMalformedPayload, i, j)
			}
		}
	}
	if h.EntityID() == "" {
		return fmt.Errorf("%w: cannot derive character name from histories", ErrMalformedPayload)
	}
	return nil
}

func (h *CharacterHistories) UnmarshalJSON(data []byte) error {
	type plain CharacterHistories
	if err := json.Unmarshal(data, (*plain)(h)); err != nil {
		return err
	}
	extra, err := collectExtra(data, "histories")
	h.Extra = extra
	return err
}

func (h CharacterHistories) MarshalJSON() ([]byte, error) {
	type plain CharacterHistories
	return mergeExtra(plain(h), h.Extra)
}

func (h *History) UnmarshalJSON(data []byte) error {
	type plain History
	if err := json.Unmarshal(data, (*plain)(h)); err != nil {
		return err
	}
	extra, err := collectExtra(data, "msgs")
	h.Extra = extra
	return err
}

func (h History) MarshalJSON() ([]byte, error) {
	type plain History
	return mergeExtra(plain(h), h.Extra)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	if err := json.Unmarshal(data, (*plain)(m)); err != nil {
		return err
	}
	extra, err := collectExtra(data, "text", "display_name", "src", "tgt")
	m.Extra = extra
	return err
}

func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return mergeExtra(plain(m), m.Extra)
}

func (p *Participant) UnmarshalJSON(data []byte) error {
	type plain Participant
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	extra, err := collectExtra(data, "name", "is_human", "user")
	p.Extra = extra
	return err
}

func (p Participant) MarshalJSON() ([]byte, error) {
	type plain Participant
	return mergeExtra(plain(p), p.Extra)
}

func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	if err := json.Unmarshal(data, (*plain)(u)); err != nil {
		return err
	}
	extra, err := collectExtra(data, "username", "first_name", "name", "account")
	u.Extra = extra
	return err
}

func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return mergeExtra(plain(u), u.Extra)
}

func (a *Account) UnmarshalJSON(data []byte) error {
	type plain Account
	if err := json.Unmarshal(data, (*plain)(a)); err != nil {
		return err
	}
	extra, err := collectExtra(data, "name")
	a.Extra = extra
	return err
}

func (a Account) MarshalJSON() ([]byte, error) {
	type plain Account
	return mergeExtra(plain(a), a.Extra)
}
