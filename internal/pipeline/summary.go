package pipeline

import (
	"strings"

	"chat-dumper-go/internal/model"
)

// Summarize 统计已脱敏对话中的占位符数量，用于导出审计。
// 标识符数量在脱敏后无法还原，Identifiers 恒为 0。
func Summarize(h *model.CharacterHistories) Report {
	var report Report
	for _, history := range h.Histories {
		if history == nil || len(history.Msgs) == 0 {
			continue
		}
		report.Conversations++
		for _, msg := range history.Msgs {
			if msg == nil {
				continue
			}
			report.Messages++
			report.RedactedFields += countRedacted(msg.HumanParticipant())
			if msg.IsHuman() && msg.DisplayName == PlaceholderDisplayName {
				report.RedactedFields++
			}
			report.RedactedMentions += strings.Count(msg.Text, PlaceholderNameInMessage)
		}
	}
	return report
}

func countRedacted(p *model.Participant) int {
	if p == nil {
		return 0
	}
	n := 0
	if p.Name == PlaceholderName {
		n++
	}
	if u := p.User; u != nil {
		for _, v := range []string{u.Username, u.FirstName, u.Name} {
			if isPlaceholder(v) {
				n++
			}
		}
		if u.Account != nil && u.Account.Name == PlaceholderAccountName {
			n++
		}
	}
	return n
}
