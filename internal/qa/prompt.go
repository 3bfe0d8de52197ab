package qa

import (
	"bytes"
	"fmt"
	"text/template"
)

const overviewInstructions = `You are analyzing a GitHub project. Provide a comprehensive overview of this project based on the provided context. Include:
- Project purpose and main functionality
- Tech stack (infer from file types and package files)
- Project structure and organization
- Recent activity and development trends (from commits)
- Key features and capabilities
- How to get started or use the project

Be detailed but concise. Use markdown formatting. If you find a README file, prioritize that information.`

const specificInstructions = `You are an assistant who answers questions about codebases. Your audience is a technical intern who is trying to understand the codebase.
Take into account the CONTEXT BLOCK provided below.
If the question is about the code or a specific file, give a detailed answer with step by step explanations.
If the context does not provide the answer, say "I am sorry, but I don't know the answer."
Do not invent anything that is not drawn directly from the context.
Answer in markdown, with code snippets where useful.`

const answerPromptTemplate = `{{.Instructions}}

START CONTEXT BLOCK
{{.Context}}
END CONTEXT BLOCK

START QUESTION
{{.Question}}
END QUESTION`

var answerTmpl = template.Must(template.New("answer").Parse(answerPromptTemplate))

// BuildPrompt renders the answer prompt for a retrieval, with framing for
// overview or specific questions.
func BuildPrompt(r *Retrieval) (string, error) {
	instructions := specificInstructions
	if r.Overview {
		instructions = overviewInstructions
	}
	var buf bytes.Buffer
	data := struct{ Instructions, Context, Question string }{instructions, r.Context, r.Question}
	if err := answerTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering answer prompt: %w", err)
	}
	return buf.String(), nil
}
