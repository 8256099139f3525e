package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
)

// PromptTemplate defines the fixed text used to ground a conversation in a chart.
type PromptTemplate struct {
	Role            string
	Guidelines      []string
	Closing         string
	Acknowledgement string
}

// DefaultPromptTemplate is the Vedic astrologer persona used for every session.
func DefaultPromptTemplate() PromptTemplate {
	return PromptTemplate{
		Role: "You are a compassionate AI Vedic astrologer and therapist. Your role is to provide insightful, supportive guidance based on Vedic astrology principles.",
		Guidelines: []string{
			"Address their specific questions to help them open up more about their problems",
			"Use the astrological data to provide insights into their traits",
			"Maintain a warm, supportive tone which helps them build trust",
			"Offer practical guidance where appropriate",
			"Keep responses focused with short paragraphs",
			"Remember this birth data for the entire conversation",
			"Use emojis and light humor occasionally to add warmth: ✨🌟💫🌙☀️",
			"Do not overwhelm the user with very long answers",
			"Make them feel they are talking to a trusted, compassionate person",
			"Use line breaks appropriately",
		},
		Closing:         "This is the start of a conversation with this person. You have their complete birth chart data above.",
		Acknowledgement: "I understand. I have analyzed your birth chart and I am ready to provide personalized astrological guidance based on your Vedic astrology data. I will maintain this context throughout our conversation. What would you like to know?",
	}
}

// BuildSystemPrompt embeds the chart document into the role instructions.
func (p PromptTemplate) BuildSystemPrompt(chartData json.RawMessage) string {
	var builder strings.Builder
	builder.WriteString(p.Role)
	builder.WriteString("\n\nUser's Birth Information:\n")
	builder.WriteString(prettyJSON(chartData))
	builder.WriteString("\n\nPlease provide thoughtful responses that:\n")
	for i, rule := range p.Guidelines {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, rule)
	}
	builder.WriteString("\n")
	builder.WriteString(p.Closing)
	return builder.String()
}

// PrimingTurns returns the two opening turns for a new session.
func (p PromptTemplate) PrimingTurns(chartData json.RawMessage) []chat.Turn {
	return []chat.Turn{
		{Speaker: chat.SpeakerSystemPriming, Text: p.BuildSystemPrompt(chartData)},
		{Speaker: chat.SpeakerModelPriming, Text: p.Acknowledgement},
	}
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
