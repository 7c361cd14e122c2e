package answer

import (
	"strings"

	"github.com/hyperjump/bunbetsu/internal/llm"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/textnorm"
	"github.com/hyperjump/bunbetsu/pkg/utils"
)

// maxReferenceRunes bounds the rule text placed in the prompt.
const maxReferenceRunes = 320

const systemPrompt = "あなたは自治体のごみ分別案内ボットです。" +
	"常に日本語で、提供された情報の範囲内で簡潔かつ正確に回答してください。"

// Prompt builds the messages asking the model to restate a single rule. The reference data is
// only doc; the instructions forbid extending the answer to other items.
func Prompt(query string, doc *models.Document) []llm.Message {
	var b strings.Builder
	b.WriteString("あなたは北九州市のごみ分別案内の専門AIです。")
	b.WriteString("以下の参照データ1件の範囲内で、日本語で簡潔かつ正確に回答してください。")
	b.WriteString("重要なルール:")
	b.WriteString("1. 参照データの品目についてのみ回答し、他の品目に一般化したり言及したりしないでください。")
	b.WriteString("2. 推測や一般的なアドバイスは避け、参照データに書かれている内容だけを使ってください。")
	b.WriteString("3. 備考があれば補足してください。")
	b.WriteString("\n\n質問:\n")
	b.WriteString(textnorm.Normalize(query))
	b.WriteString("\n\n参照データ:\n")
	b.WriteString(utils.Truncate(strings.TrimSpace(doc.Content), maxReferenceRunes))
	b.WriteString("\n\n回答:")
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}
