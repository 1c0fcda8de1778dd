package processor

import (
	"strings"

	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/types"
)

// DocumentOutcome 单个文件在批次中的处理结果
// Extracted 为 false 时 Text 不参与拼接；Record 为 nil 表示结构化失败
type DocumentOutcome struct {
	Filename  string
	Text      string
	Extracted bool
	Record    *types.CVRecord
}

// AggregateCorpus 按上传顺序把结果聚合为语料
// 只依赖输入，不填 BatchID 与 CreatedAt
func AggregateCorpus(outcomes []DocumentOutcome) *types.Corpus {
	texts := make([]string, 0, len(outcomes))
	records := make([]*types.CVRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Extracted {
			texts = append(texts, o.Text)
		}
		if o.Record != nil {
			records = append(records, o.Record)
		}
	}
	return &types.Corpus{
		JoinedText: strings.Join(texts, constants.CorpusSeparator),
		Records:    records,
	}
}
