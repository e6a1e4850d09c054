package pipeline

import (
	"testing"

	"chat-dumper-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_MatchesAnonymizeReport(t *testing.T) {
	bob := func() *model.Participant { return human("Bob", "bob42", "Bob", "Bobby", "Bob") }
	h := &model.CharacterHistories{Histories: []*model.History{
		{Msgs: []*model.Message{
			botMsg("Greetings, traveller.", bob()),
			humanMsg("hi", "Bob", bob()),
			botMsg("Hello Bob, how are you? Bob! bob42 and Bobby too.", bob()),
		}},
		{},
		{Msgs: []*model.Message{
			botMsg("Back again, Bobby?", &model.Participant{Name: "Bob"}),
		}},
	}}

	_, report := Anonymize(h)
	summary := Summarize(h)

	assert.Equal(t, report.Conversations, summary.Conversations)
	assert.Equal(t, report.Messages, summary.Messages)
	assert.Equal(t, report.RedactedFields, summary.RedactedFields)
	assert.Equal(t, report.RedactedMentions, summary.RedactedMentions)
	assert.Zero(t, summary.Identifiers)
}

func TestSummarize_UntouchedHistoriesCountNothing(t *testing.T) {
	h := &model.CharacterHistories{Histories: []*model.History{{Msgs: []*model.Message{
		botMsg("Hello Bob", human("Bob", "bob42", "Bob", "Bobby", "Bob")),
	}}}}

	summary := Summarize(h)
	assert.Equal(t, 1, summary.Messages)
	assert.Zero(t, summary.RedactedFields)
	assert.Zero(t, summary.RedactedMentions)
}
