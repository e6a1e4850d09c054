// Package pipeline 实现了对话记录的脱敏流程。
//
// 只处理一组固定字段：参与方的 name、user.username、user.first_name、
// user.name、user.account.name 以及用户消息的 display_name。这些字段的原值
// 会被收集起来，再用于清理角色消息正文中对用户的称呼。
package pipeline

import (
	"chat-dumper-go/internal/model"
)

// 结构化字段与正文使用的占位符。
const (
	PlaceholderUsername      = "[USERNAME_REDACTED]"
	PlaceholderFirstName     = "[FIRST_NAME_REDACTED]"
	PlaceholderAccountName   = "[ACCOUNT_NAME_REDACTED]"
	PlaceholderName          = "[NAME_REDACTED]"
	PlaceholderDisplayName   = "[DISPLAY_NAME_REDACTED]"
	PlaceholderNameInMessage = "[NAME_IN_MESSAGE_REDACTED]"
)

var placeholders = map[string]struct{}{
	PlaceholderUsername:      {},
	PlaceholderFirstName:     {},
	PlaceholderAccountName:   {},
	PlaceholderName:          {},
	PlaceholderDisplayName:   {},
	PlaceholderNameInMessage: {},
}

func isPlaceholder(s string) bool {
	_, ok := placeholders[s]
	return ok
}

// Report 汇总一次脱敏的结果，用于日志与审计。
type Report struct {
	Conversations    int
	Messages         int
	RedactedFields   int
	RedactedMentions int
	Identifiers      int
}

// Anonymize 原地脱敏 h 并返回同一个对象。
//
// 标识符集合在整批对话内共享、只增不减：在第 2 段对话里学到的名字，
// 同样会用于第 3 段及之后的正文清理。
func Anonymize(h *model.CharacterHistories) (*model.CharacterHistories, Report) {
	ids := NewIdentifiers()
	var report Report
	for _, history := range h.Histories {
		ids = anonymizeHistory(history, ids, &report)
	}
	report.Identifiers = ids.Len()
	return h, report
}

// anonymizeHistory 处理一段对话，返回累积后的标识符集合。
func anonymizeHistory(history *model.History, ids *Identifiers, report *Report) *Identifiers {
	if history == nil || len(history.Msgs) == 0 {
		return ids
	}
	report.Conversations++

	for _, msg := range history.Msgs {
		report.Messages++
		if msg.IsHuman() {
			ids.Add(participantValues(msg.Src)...)
			ids.Add(msg.DisplayName)
			report.RedactedFields += redactParticipant(msg.Src)
			msg.DisplayName = PlaceholderDisplayName
			report.RedactedFields++
			continue
		}

		// 角色发言：tgt 是用户。display_name 属于角色，保持不变。
		ids.Add(participantValues(msg.Tgt)...)
		report.RedactedFields += redactParticipant(msg.Tgt)

		text, n := ids.Scrub(msg.Text)
		msg.Text = text
		report.RedactedMentions += n
	}

	// 第一条消息处理时可能还没见到任何用户名字，整段处理完后再清理一次。
	first := history.Msgs[0]
	text, n := ids.Scrub(first.Text)
	first.Text = text
	report.RedactedMentions += n

	return ids
}

// participantValues 读取参与方的五个身份字段，缺失的子结构视为空。
func participantValues(p *model.Participant) []string {
	if p == nil {
		return nil
	}
	var values []string
	if p.User != nil {
		values = append(values, p.User.Username, p.User.FirstName)
		if p.User.Account != nil {
			values = append(values, p.User.Account.Name)
		}
		values = append(values, p.User.Name)
	}
	return append(values, p.Name)
}

// redactParticipant 用占位符覆盖参与方的身份字段，返回覆盖的字段数。
// 不存在的 user/account 子结构不会被创建。
func redactParticipant(p *model.Participant) int {
	if p == nil {
		return 0
	}
	p.Name = PlaceholderName
	n := 1
	if p.User != nil {
		p.User.Username = PlaceholderUsername
		p.User.FirstName = PlaceholderFirstName
		p.User.Name = PlaceholderName
		n += 3
		if p.User.Account != nil {
			p.User.Account.Name = PlaceholderAccountName
			n++
		}
	}
	return n
}
