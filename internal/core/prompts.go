package core

import (
	"fmt"
	"strings"
)

const (
	DefaultGenerateBasePrompt = "You are an expert curriculum developer.\n" +
		"Your task is to generate comprehensive, engaging, and structured course content based on the provided Chapter Title and Lesson Prompt.\n" +
		"Ensure the content is formatted in clean Markdown.\n" +
		"Use analogies, examples, and clear explanations."

	DefaultTipsBasePrompt = "You are a helpful tutor.\n" +
		"The user has highlighted a specific text snippet (Context) from a lesson.\n" +
		"Explain this concept simply and briefly.\n" +
		"If the context is incomplete, use the surrounding context to infer the meaning.\n" +
		"Keep the answer under 100 words unless complex."

	DefaultChatBasePrompt = "You are a friendly learning assistant.\n" +
		"You are here to help the user with their continuous learning journey.\n" +
		"Maintain context of the conversation.\n" +
		"Answer questions, clarify doubts, and provide encouragement."

	lessonPromptSystemInstruction = "You are an expert curriculum developer."
	connectionTestPrompt          = "Hello, answer with just 'OK'."
)

// Fallback replies shown in place of generated text when a request fails.
const (
	FallbackLessonPrompt = "Error generating lesson prompt. Please check your Base URL, API Key and Model settings."
	FallbackTip          = "Could not generate tip. Check settings."
	FallbackChat         = "Sorry, I encountered an error processing your message."
	fallbackContentFmt   = "Error generating content: %s"
)

func lessonPromptUserPrompt(chapterTitle, language string) string {
	return fmt.Sprintf(`Based on the chapter title: %q, generate a detailed "Lesson Prompt" that describes what should be covered in this chapter.
The output should be a set of instructions for another AI to write the content.
Do not write the content itself, just the prompt instructions.
Keep it concise but comprehensive.

IMPORTANT: The generated prompt instructions must be written in %s.`, chapterTitle, language)
}

func courseContentUserPrompt(chapterTitle, lessonPrompt, language string) string {
	return fmt.Sprintf(`Current Chapter: %s

Specific Instructions (Lesson Prompt):
%s

IMPORTANT: The content must be written in %s.`, chapterTitle, lessonPrompt, language)
}

func tipUserPrompt(selectedText, language string) string {
	return fmt.Sprintf(`User Selected Text: %q

IMPORTANT: The explanation must be written in %s.`, selectedText, language)
}

// chatSystemInstruction folds the language directive and, when present, the
// active chapter's content into the configured base prompt.
func chatSystemInstruction(basePrompt, language, contextContent string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	fmt.Fprintf(&b, "\n\nIMPORTANT: You must always respond in %s.", language)
	if strings.TrimSpace(contextContent) != "" {
		b.WriteString("\n\nThe learner is currently studying the following lesson material. " +
			"Ground your answers in it when relevant.\n\n--- CONTEXT START ---\n")
		b.WriteString(strings.TrimSpace(contextContent))
		b.WriteString("\n--- CONTEXT END ---")
	}
	return b.String()
}

func fallbackContent(err error) string {
	return fmt.Sprintf(fallbackContentFmt, err.Error())
}
