package ai

import (
	"fmt"
	"strings"
)

const gradingSystemPrompt = `You are an exam grader. Grade every question/answer pair you are given.

For each question decide whether the student's answer is correct, partially correct or incorrect,
award between 0 and 10 points and write a short feedback sentence for the student.
Finally give an overall total_score between 0 and 100.

Respond with a single JSON object and nothing else, using exactly this shape:
{
  "evaluations": [
    {
      "question": "<question text>",
      "student_answer": "<student answer>",
      "is_correct": true | false | "partial",
      "feedback": "<feedback for the student>",
      "points": <number from 0 to 10>
    }
  ],
  "total_score": <number from 0 to 100>
}`

// BuildGradingPrompt turns the exam's question/answer pairs into the system and
// user messages for the grading model. Pairs with an empty question or answer
// are left out.
func BuildGradingPrompt(questions []QuestionAnswer) GradingPrompt {
	builder := strings.Builder{}
	builder.WriteString("Grade the following exam answers.\n")

	n := 0
	for _, qa := range questions {
		if !qa.Valid() {
			continue
		}
		n++
		builder.WriteString(fmt.Sprintf("\nQuestion %d: %s\n", n, strings.TrimSpace(qa.Question)))
		builder.WriteString(fmt.Sprintf("Answer: %s\n", strings.TrimSpace(qa.Answer)))
	}

	builder.WriteString("\nReturn JSON.")

	return GradingPrompt{
		System: gradingSystemPrompt,
		User:   builder.String(),
	}
}
