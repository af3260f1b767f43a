package generation

import (
	"fmt"
	"strings"
)

func directSummaryPrompt(text string) string {
	return fmt.Sprintf(`Write a comprehensive summary of the text below.
Concentrate on the key information and the main points.

%s

Summary:`, text)
}

func mapSummaryPrompt(extract string) string {
	return "Summarize this extract of a longer document:\n\n" + extract
}

func reduceSummaryPrompt(summaries string) string {
	return fmt.Sprintf(`The following are summaries of consecutive parts of one document.
Merge them into a single coherent summary with a clear narrative flow and no repetition:

%s

Final summary:`, summaries)
}

func questionsPrompt(summary string) string {
	return fmt.Sprintf(`Based on the document summarized below, write exactly three specific and insightful
questions that the full document can answer.

Summary: %s

Rules:
- Write exactly three questions, one per line, each ending with a question mark
- Each question should need a detailed answer drawn from the full text
- Cover the most important aspects of the document
- Make the questions specific and different from each other
- Do not add any other text

Questions:`, summary)
}

// answerPrompt embeds each chunk under its own numbered label, nearest first.
func answerPrompt(question string, chunks []string) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = fmt.Sprintf("[Context %d]: %s", i+1, ch)
	}
	return fmt.Sprintf(`Answer the question below using ONLY the provided context.
If the context is not sufficient to answer fully, say so explicitly and explain
what can be determined from the available information.

Question: %s

Relevant context:
%s

Answer:`, question, strings.Join(parts, "\n\n"))
}
