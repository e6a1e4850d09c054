package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"chat-dumper-go/internal/model"
	"chat-dumper-go/internal/pipeline"

	"github.com/spf13/cobra"
)

// dumpFile 是导出文件的结构：{"info": ..., "histories": ...}。
type dumpFile struct {
	Info      json.RawMessage `json:"info"`
	Histories json.RawMessage `json:"histories"`
}

// splitDump 识别输入是完整导出文件还是单独的 histories 响应体。
func splitDump(data []byte) (info, histories json.RawMessage, err error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}
	if _, ok := probe["info"]; ok {
		var doc dumpFile
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
		}
		return doc.Info, doc.Histories, nil
	}
	return nil, data, nil
}

func newRedactCmd() *cobra.Command {
	var (
		outPath string
		pretty  bool
	)
	cmd := &cobra.Command{
		Use:   "redact [file|-]",
		Short: "Redact personal data from a histories payload or an exported dump",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			info, raw, err := splitDump(data)
			if err != nil {
				return err
			}
			h, err := model.DecodeCharacterHistories(raw)
			if err != nil {
				return err
			}
			entity := h.EntityID()
			_, report := pipeline.Anonymize(h)

			var out any = h
			if info != nil {
				redacted, err := json.Marshal(h)
				if err != nil {
					return err
				}
				out = dumpFile{Info: info, Histories: redacted}
			}
			encoded, err := json.Marshal(out)
			if err != nil {
				return err
			}
			if pretty {
				var buf bytes.Buffer
				if err := json.Indent(&buf, encoded, "", "  "); err != nil {
					return err
				}
				encoded = buf.Bytes()
			}
			encoded = append(encoded, '\n')

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(encoded)
			} else {
				err = os.WriteFile(outPath, encoded, 0o600)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d conversations, %d messages, %d fields and %d mentions redacted\n",
				entity, report.Conversations, report.Messages, report.RedactedFields, report.RedactedMentions)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}
