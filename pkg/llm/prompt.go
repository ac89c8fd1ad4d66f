package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = `You summarise municipal meeting agendas for residents who want to know what their local government is deciding. You write plain, concrete markdown: what is proposed, who it affects, money involved, and when decisions happen. You never speculate beyond the document.`

const responseContract = `Respond with ONLY a JSON object:
{
  "summary": "<markdown summary, 2-6 short paragraphs or bullet lists>",
  "topics": ["<tag>", ...],
  "confidence": "low" | "medium" | "high",
  "thinking": "<one short paragraph on what drove your reading, optional>"
}
"topics" must only use tags from this list: %s`

func buildPrompt(req Request, taxonomy []string) string {
	var b strings.Builder
	if req.Title != "" {
		fmt.Fprintf(&b, "Document: %s\n\n", req.Title)
	}
	b.WriteString("Summarise this agenda document.\n\n---\n")
	b.WriteString(req.Text)
	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, responseContract, strings.Join(taxonomy, ", "))
	return b.String()
}

func buildBatchPrompt(reqs []Request, taxonomy []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarise each of the following %d agenda items from the same meeting.\n\n", len(reqs))
	for i, r := range reqs {
		fmt.Fprintf(&b, "### Item %d: %s\n%s\n\n", i+1, r.Title, r.Text)
	}
	b.WriteString(`Respond with ONLY a JSON object of the form {"items": [...]} where ` +
		fmt.Sprintf("items has exactly %d entries, in the same order as the input, ", len(reqs)) +
		"each entry matching:\n")
	fmt.Fprintf(&b, responseContract, strings.Join(taxonomy, ", "))
	return b.String()
}
