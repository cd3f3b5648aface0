package research

import (
	"fmt"
	"strings"
	"time"
)

const plannerPersona = `You are a research planning assistant. You decompose a research topic into targeted web search queries. You always answer with a single JSON object and nothing else.`

const writerPersona = `You are a senior research analyst. You write thorough, well-structured markdown reports grounded strictly in the provided source material, citing sources inline as [Source N].`

func planningPrompt(topic string, now time.Time) string {
	return fmt.Sprintf(`TOPIC: %s
CURRENT DATE: %s

Produce a search plan for researching this topic on the web.

REQUIREMENTS:
1. Write 3 to 6 distinct queries covering complementary angles of the topic.
2. For each query choose a search type: "neural" for conceptual queries, "keyword" for exact-term queries. The searchTypes list must have the same length as queries.
3. Set "isTimeSensitive" to true only if recency matters for this topic; in that case include a "dateRange" with ISO dates (startDate <= endDate). Omit dateRange otherwise.
4. Explain your choices briefly in "reasoning".

OUTPUT FORMAT (JSON):
{
  "queries": ["..."],
  "searchTypes": ["neural", "keyword"],
  "isTimeSensitive": false,
  "dateRange": {"startDate": "YYYY-MM-DD", "endDate": "YYYY-MM-DD"},
  "reasoning": "..."
}

Return ONLY strict JSON. No prose, no code fences.`, topic, now.Format("2006-01-02"))
}

const contentDelimiter = "\n\n---\n\n"

func writingPrompt(topic string, sources []Source, contents []string) string {
	var list strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&list, "[%d] %s - %s\n", i+1, s.Title, s.URL)
	}

	return fmt.Sprintf(`TOPIC: %s

SOURCES:
%s
SOURCE CONTENTS:
%s

Write a comprehensive markdown research report on the topic using only the material above. Structure it as:
- a title
- an executive summary
- an introduction
- thematic findings sections, citing sources inline as [Source N] where N is the number from the source list
- an analysis section
- a limitations section
- a conclusion
- a sources section listing every cited source

Target 1500-2500 words.`, topic, list.String(), strings.Join(contents, contentDelimiter))
}
