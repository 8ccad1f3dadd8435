// Package inference holds the provider-neutral side of the LLM adapters:
// prompts, response parsing and error classification.
package inference

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
)

// Capabilities, used as metric labels.
const (
	CapabilityKeywords  = "keywords"
	CapabilityRelevance = "relevance"
	CapabilityDocument  = "document"
)

// Prompt limits.
const (
	MaxDecisionChars = 2000
	MaxSummaryChars  = 200
)

// SystemPrompt frames every request.
const SystemPrompt = "Türk hukuku alanında uzman bir asistansın. Yargıtay kararlarını analiz eder, " +
	"yalnızca istenen biçimde ve uydurma bilgi vermeden yanıt verirsin."

// KeywordsPrompt asks for search keywords in the format ParseKeywords accepts.
func KeywordsPrompt(caseText string) string {
	return "Aşağıdaki hukuki olay metnini analiz et ve Yargıtay kararlarında arama yapmak için " +
		"en uygun anahtar kelimeleri çıkar. Anahtar kelimeler Türk hukuku terminolojisine uygun olmalı.\n\n" +
		"Olay metni: " + caseText + "\n\n" +
		"Yalnızca anahtar kelimeleri virgülle ayırarak listele. Açıklama yapma.\n" +
		`Örnek: "tazminat, sözleşme ihlali, maddi zarar, manevi tazminat"`
}

// RelevancePrompt asks for a relevance judgement. The decision text is cut to MaxDecisionChars.
func RelevancePrompt(caseText, decisionText string) string {
	return "Aşağıdaki olay metni ile Yargıtay kararı arasındaki ilişkiyi analiz et.\n\n" +
		"OLAY METNİ:\n" + caseText + "\n\n" +
		"YARGITAY KARARI:\n" + Truncate(decisionText, MaxDecisionChars) + "\n\n" +
		"Şu biçimde yanıt ver:\n" +
		"PUAN: [0-100 arası sayı]\n" +
		"AÇIKLAMA: [Kısa açıklama]\n" +
		"BENZERLIK: [Hangi konularda benzer]"
}

// DocumentPrompt asks for a petition draft grounded on decisions.
func DocumentPrompt(caseText string, decisions []decision.Scored) string {
	var b strings.Builder
	for _, d := range decisions {
		title := d.Title
		if title == "" {
			title = d.DecisionID
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", title, d.DecisionID, Truncate(summary(d), MaxSummaryChars))
	}
	return "Aşağıdaki bilgileri kullanarak hukuki dilekçe şablonu oluştur.\n\n" +
		"OLAY METNİ:\n" + caseText + "\n\n" +
		"ALAKALI YARGITAY KARARLARI:\n" + b.String() + "\n" +
		"Standart dilekçe biçiminde, emsal kararlara atıf yapan bir şablon yaz. Şablon şu bölümleri içermeli:\n" +
		"- Başlık\n- Taraflar\n- Olaylar\n- Hukuki Dayanak\n- Emsal Kararlar\n- Talep"
}

func summary(d decision.Scored) string {
	if d.Explanation != "" {
		return d.Explanation
	}
	return d.RawContent
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
