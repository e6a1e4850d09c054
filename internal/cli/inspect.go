package cli

import (
	"encoding/json"
	"fmt"

	"chat-dumper-go/internal/model"
	"chat-dumper-go/internal/pipeline"

	"github.com/spf13/cobra"
)

// InspectResult 是 inspect 命令的输出。
type InspectResult struct {
	Entity           string `json:"entity"`
	HasInfo          bool   `json:"hasInfo"`
	Conversations    int    `json:"conversations"`
	Messages         int    `json:"messages"`
	RedactedFields   int    `json:"redactedFields"`
	RedactedMentions int    `json:"redactedMentions"`
	Redacted         bool   `json:"redacted"`
}

func inspect(data []byte) (InspectResult, error) {
	info, raw, err := splitDump(data)
	if err != nil {
		return InspectResult{}, err
	}
	h, err := model.DecodeCharacterHistories(raw)
	if err != nil {
		return InspectResult{}, err
	}
	summary := pipeline.Summarize(h)

	// 对副本再跑一次脱敏：已脱敏的内容不会产生任何新的改动
	probe, err := model.DecodeCharacterHistories(raw)
	if err != nil {
		return InspectResult{}, err
	}
	before, err := json.Marshal(probe)
	if err != nil {
		return InspectResult{}, err
	}
	pipeline.Anonymize(probe)
	after, err := json.Marshal(probe)
	if err != nil {
		return InspectResult{}, err
	}

	return InspectResult{
		Entity:           h.EntityID(),
		HasInfo:          info != nil,
		Conversations:    summary.Conversations,
		Messages:         summary.Messages,
		RedactedFields:   summary.RedactedFields,
		RedactedMentions: summary.RedactedMentions,
		Redacted:         string(before) == string(after),
	}, nil
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file|-]",
		Short: "Report conversation counts and redaction state of a dump",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			result, err := inspect(data)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
