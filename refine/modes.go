package refine

import (
	"fmt"
	"strings"
)

const DefaultMode = "default"

// Mode is a named rewriting style. Prompt holds a {transcription}
// placeholder for the raw text.
type Mode struct {
	Name   string
	Title  string
	Prompt string
}

// Render fills the prompt with raw.
func (m Mode) Render(raw string) string {
	return strings.ReplaceAll(m.Prompt, "{transcription}", raw)
}

var modes = []Mode{
	{
		Name:  "default",
		Title: "Smart Dictation",
		Prompt: `You are an intelligent writing assistant. Transform the spoken transcription into polished text.

Instructions:
1. Remove filler words (um, uh, like, you know, etc.)
2. Fix grammar and punctuation
3. Keep the speaker's original intent and meaning
4. Make it sound natural and clear

Raw transcription:
{transcription}

Refined text (output ONLY the refined text):`,
	},
	{
		Name:  "email_professional",
		Title: "Professional Email",
		Prompt: `You are a professional business writing assistant. Transform the spoken words into a polished, professional email.

Instructions:
1. Remove all filler words and informal language
2. Use professional, courteous tone
3. Add proper email structure if needed
4. Ensure clarity and conciseness
5. Maintain professional business etiquette

Raw transcription:
{transcription}

Professional email text:`,
	},
	{
		Name:  "email_casual",
		Title: "Casual Email",
		Prompt: `You are a friendly writing assistant. Transform the spoken words into a casual, friendly email.

Instructions:
1. Remove filler words but keep casual tone
2. Use friendly, conversational language
3. Keep it warm and approachable
4. Fix grammar while maintaining friendly voice

Raw transcription:
{transcription}

Casual email text:`,
	},
	{
		Name:  "prompt_writer",
		Title: "AI Prompt (Developer)",
		Prompt: `You are an AI prompt engineering expert. Transform the spoken instructions into a clear, well-structured prompt for AI agents or developers.

Instructions:
1. Remove filler words and organize thoughts logically
2. Use clear, technical language
3. Structure the prompt with sections if needed
4. Include relevant context and constraints
5. Make it actionable and specific for AI/developers

Raw transcription:
{transcription}

Well-structured AI prompt:`,
	},
	{
		Name:  "creative_writing",
		Title: "Creative Writing",
		Prompt: `You are a creative writing assistant. Transform the spoken ideas into engaging, creative prose.

Instructions:
1. Remove filler words while preserving creativity
2. Enhance descriptive language
3. Improve narrative flow
4. Keep the original creative vision
5. Add literary polish

Raw transcription:
{transcription}

Creative text:`,
	},
	{
		Name:  "grammar_only",
		Title: "Grammar Correction",
		Prompt: `Fix ONLY grammar, spelling, and punctuation. Do not change the meaning or add any content.

Raw text:
{transcription}

Corrected text:`,
	},
	{
		Name:  "technical_writing",
		Title: "Technical Documentation",
		Prompt: `You are a technical writing assistant. Transform spoken technical content into clear documentation.

Instructions:
1. Remove filler words
2. Use precise technical language
3. Organize into clear sections if needed
4. Ensure accuracy and clarity
5. Maintain professional technical tone

Raw transcription:
{transcription}

Technical documentation:`,
	},
}

// Modes returns every mode in display order.
func Modes() []Mode {
	return append([]Mode(nil), modes...)
}

func ModeNames() []string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = m.Name
	}
	return names
}

func LookupMode(name string) (Mode, error) {
	for _, m := range modes {
		if m.Name == name {
			return m, nil
		}
	}
	return Mode{}, fmt.Errorf("unknown writing mode %q", name)
}

// NextMode returns the mode after name, wrapping around. Unknown names
// start over at the first mode.
func NextMode(name string) Mode {
	for i, m := range modes {
		if m.Name == name {
			return modes[(i+1)%len(modes)]
		}
	}
	return modes[0]
}
