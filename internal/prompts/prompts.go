// Package prompts holds the prompt templates used by the generation
// pipeline and the feedback analyzer. Templates are plain constants with
// exported render functions so call sites never concatenate prompt text
// themselves.
package prompts

import (
	"fmt"
	"strings"
)

// agentContext frames the reasoning model's role before user prompts
// and retrieved reference passages are appended.
const agentContext = `Purpose: The primary role of this agent is to assist users by analyzing code. It should be able to generate code and answer questions about code provided.`

// AgentContext returns the system framing for the reasoning model.
func AgentContext() string {
	return agentContext
}

// AgentQuery builds the reasoning-model prompt from the user prompt and
// any retrieved reference passages.
func AgentQuery(userPrompt string, passages []string) string {
	if len(passages) == 0 {
		return userPrompt
	}

	var b strings.Builder
	b.WriteString("Reference material relevant to the request:\n")
	for _, p := range passages {
		b.WriteString("---\n")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("---\n\nRequest: ")
	b.WriteString(userPrompt)
	return b.String()
}

// codeParserTemplate instructs the code model to restructure a free-form
// response into the artifact JSON shape.
const codeParserTemplate = `Parse the response from the previous LLM into a description and a string of valid code. Also come up with a valid filename that could be saved which doesn't contain any special characters. Here is the response: %s
You should parse this in the following JSON format: {"code": "...", "description": "...", "filename": "..."}
Return only the JSON object.`

// CodeParser builds the structured-output instruction for a raw agent
// response.
func CodeParser(response string) string {
	return fmt.Sprintf(codeParserTemplate, response)
}

// retryTemplate re-issues the original prompt with a bounded excerpt of
// the previous failure so the model can avoid repeating it.
const retryTemplate = `%s

The previous attempt to answer this request produced output that could not be used:
%s
Respond again, avoiding this problem. Return only the requested JSON object.`

// Retry builds the augmented prompt for a retry attempt. errExcerpt is
// expected to be pre-truncated by the caller.
func Retry(originalPrompt, errExcerpt string) string {
	return fmt.Sprintf(retryTemplate, originalPrompt, errExcerpt)
}

// FeedbackAnalysis builds the prompt that summarizes stored feedback
// into themes. Each line carries one entry's prompt, generated output,
// rating, and comment.
func FeedbackAnalysis(lines []string) string {
	var b strings.Builder
	b.WriteString("Analyze the following feedbacks to provide insights and/or summary about the code quality and user satisfaction to the users.\n")
	for _, line := range lines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(`Return a json object in the format of {"common_themes": [], "areas_for_improvement": [], "what_users_like": [], "suggestions": []}`)
	return b.String()
}

// improvementTemplate requests categorized, prioritized improvement
// suggestions for one generated artifact.
const improvementTemplate = `You are a code improvement advisor. Your task is to analyze code and feedback to suggest improvements.

INPUT:
CODE:
%s

PROMPT:
%s

FEEDBACK:
%s

OUTPUT INSTRUCTIONS:
Return a JSON object with this exact structure:
{"suggestions": [{"category": "Quality", "suggestion": "A specific improvement suggestion", "reason": "Why this improvement would help", "priority": "High"}]}

RULES:
1. category must be one of: Quality, Readability, Performance, BestPractices
2. priority must be one of: High, Medium, Low
3. Use proper JSON format with double quotes
4. Return only the JSON object, no other text
5. Include at least one suggestion
6. Each suggestion must have all four fields`

// Improvement builds the code-improvement prompt.
func Improvement(code, userPrompt, feedback string) string {
	if userPrompt == "" {
		userPrompt = "Not provided"
	}
	return fmt.Sprintf(improvementTemplate, code, userPrompt, feedback)
}

// categorizationTemplate asks for a JSON array of category names for
// one feedback entry.
const categorizationTemplate = `Categorize this feedback into relevant categories:
FEEDBACK: %s
CODE PROMPT: %s
GENERATED CODE: %s

Return a JSON array containing only the relevant category names from this list:
- Code Quality
- Performance
- Readability
- Documentation
- Functionality
- Best Practices
Example response: ["Code Quality", "Readability"]
Return only the JSON array with no additional text.`

// Categorization builds the feedback categorization prompt.
func Categorization(comment, userPrompt, code string) string {
	if userPrompt == "" {
		userPrompt = "Not provided"
	}
	if code == "" {
		code = "Not provided"
	}
	return fmt.Sprintf(categorizationTemplate, comment, userPrompt, code)
}
