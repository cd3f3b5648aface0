package sandbox

// remoteGoMod is the manifest transferred next to the program.
const remoteGoMod = "module researchjob\n\ngo 1.24\n"

// remoteProgram is the standalone pipeline transferred into the sandbox.
// It depends only on the standard library, reads its credentials and topic
// from the environment, and reports progress as marker-prefixed JSON lines
// on stdout.
const remoteProgram = `package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

func emit(typ string, data map[string]interface{}) {
	b, _ := json.Marshal(map[string]interface{}{"type": typ, "data": data})
	fmt.Println("__RESEARCH_MSG__" + string(b))
}

func fail(stage, msg string) {
	emit("stage_change", map[string]interface{}{"stage": stage, "status": "error", "message": msg})
	emit("error", map[string]interface{}{"message": msg, "stage": stage})
	os.Exit(1)
}

var client = &http.Client{Timeout: 120 * time.Second}

func postJSON(url string, headers map[string]string, payload map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func complete(apiKey, model, persona, prompt string) (string, error) {
	out, err := postJSON("https://api.openai.com/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + apiKey},
		map[string]interface{}{
			"model": model,
			"messages": []map[string]string{
				{"role": "system", "content": persona},
				{"role": "user", "content": prompt},
			},
		})
	if err != nil {
		return "", err
	}
	choices, _ := out["choices"].([]interface{})
	if len(choices) == 0 {
		return "", fmt.Errorf("no choices")
	}
	choice, _ := choices[0].(map[string]interface{})
	message, _ := choice["message"].(map[string]interface{})
	content, _ := message["content"].(string)
	return content, nil
}

func firstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func strSlice(v interface{}) []string {
	arr, _ := v.([]interface{})
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func main() {
	topic := os.Getenv("RESEARCH_TOPIC")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	searchKey := os.Getenv("EXA_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	endpoint := os.Getenv("EXA_ENDPOINT")
	if endpoint == "" {
		endpoint = "https://api.exa.ai"
	}
	if topic == "" || openaiKey == "" || searchKey == "" {
		fail("planning", "missing RESEARCH_TOPIC, OPENAI_API_KEY or EXA_API_KEY")
	}

	// Planning
	emit("stage_change", map[string]interface{}{"stage": "planning", "status": "active"})
	planPrompt := "TOPIC: " + topic + "\nCURRENT DATE: " + time.Now().Format("2006-01-02") + "\n\n" +
		"Produce a web search plan as a single JSON object with fields: queries (3-6 strings), " +
		"searchTypes (same length, values neural or keyword), isTimeSensitive (bool), " +
		"dateRange ({startDate, endDate} ISO dates, only when time sensitive), reasoning. " +
		"Return ONLY strict JSON."
	resp, err := complete(openaiKey, model, "You are a research planning assistant. You always answer with a single JSON object.", planPrompt)
	if err != nil {
		fail("planning", "planning completion failed: "+err.Error())
	}
	raw := firstJSON(resp)
	if raw == "" {
		fail("planning", "no JSON object found in planner response")
	}
	var plan map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		fail("planning", "invalid plan JSON: "+err.Error())
	}
	queries := strSlice(plan["queries"])
	types := strSlice(plan["searchTypes"])
	if len(queries) == 0 || len(queries) != len(types) {
		fail("planning", "plan queries and searchTypes are missing or mismatched")
	}
	emit("status", map[string]interface{}{"message": fmt.Sprintf("Planned %d search queries", len(queries)), "stage": "planning"})
	emit("stage_change", map[string]interface{}{"stage": "planning", "status": "completed"})

	// Searching
	emit("stage_change", map[string]interface{}{"stage": "searching", "status": "active"})
	searchHeaders := map[string]string{"x-api-key": searchKey}
	seen := map[string]bool{}
	var sources []map[string]interface{}
	for i, q := range queries {
		payload := map[string]interface{}{"query": q, "type": types[i], "numResults": 5}
		if dr, ok := plan["dateRange"].(map[string]interface{}); ok {
			if s, ok := dr["startDate"].(string); ok && s != "" {
				payload["startPublishedDate"] = s
			}
			if e, ok := dr["endDate"].(string); ok && e != "" {
				payload["endPublishedDate"] = e
			}
		}
		out, err := postJSON(endpoint+"/search", searchHeaders, payload)
		if err != nil {
			emit("status", map[string]interface{}{"message": fmt.Sprintf("Search %d of %d failed, continuing", i+1, len(queries)), "stage": "searching"})
			continue
		}
		results, _ := out["results"].([]interface{})
		for _, item := range results {
			r, _ := item.(map[string]interface{})
			url, _ := r["url"].(string)
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			title, _ := r["title"].(string)
			src := map[string]interface{}{
				"id":    fmt.Sprintf("src-%d", len(sources)+1),
				"title": title,
				"url":   url,
			}
			sources = append(sources, src)
			emit("source", map[string]interface{}{"source": src})
		}
	}

	n := len(sources)
	if n > 8 {
		n = 8
	}
	var contents []string
	if n > 0 {
		urls := make([]string, 0, n)
		for _, s := range sources[:n] {
			urls = append(urls, s["url"].(string))
		}
		out, err := postJSON(endpoint+"/contents", searchHeaders, map[string]interface{}{
			"urls": urls,
			"text": map[string]interface{}{"maxCharacters": 4000},
		})
		if err != nil {
			emit("status", map[string]interface{}{"message": "Content fetch failed, proceeding with search snippets", "stage": "searching"})
		} else {
			byURL := map[string]string{}
			results, _ := out["results"].([]interface{})
			for _, item := range results {
				r, _ := item.(map[string]interface{})
				url, _ := r["url"].(string)
				text, _ := r["text"].(string)
				if url != "" && text != "" {
					byURL[url] = text
				}
			}
			for _, s := range sources[:n] {
				text, ok := byURL[s["url"].(string)]
				if !ok {
					continue
				}
				snippet := text
				if len(snippet) > 300 {
					snippet = snippet[:300]
				}
				s["snippet"] = snippet
				contents = append(contents, text)
			}
		}
	}
	emit("stage_change", map[string]interface{}{"stage": "searching", "status": "completed", "message": fmt.Sprintf("Found %d sources, fetched %d documents", len(sources), len(contents))})

	// Writing
	emit("stage_change", map[string]interface{}{"stage": "writing", "status": "active"})
	var list strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&list, "[%d] %v - %v\n", i+1, s["title"], s["url"])
	}
	writePrompt := "TOPIC: " + topic + "\n\nSOURCES:\n" + list.String() +
		"\nSOURCE CONTENTS:\n" + strings.Join(contents, "\n\n---\n\n") +
		"\n\nWrite a comprehensive markdown research report on the topic using only the material above, " +
		"citing sources inline as [Source N]. Include a title, executive summary, introduction, thematic " +
		"findings, analysis, limitations, conclusion and a sources section. Target 1500-2500 words."
	report, err := complete(openaiKey, model, "You are a senior research analyst writing grounded markdown reports.", writePrompt)
	if err != nil {
		fail("writing", "report completion failed: "+err.Error())
	}
	emit("stage_change", map[string]interface{}{"stage": "writing", "status": "completed"})
	emit("result", map[string]interface{}{"report": report, "sources": sources})
}
`
