package generator

import "strings"

// Topic is the coarse category used to pick a canned answer
type Topic string

const (
	TopicEmergency  Topic = "emergency"
	TopicSymptoms   Topic = "symptoms"
	TopicMedication Topic = "medication"
	TopicGeneral    Topic = "general"
)

// Emergency is checked first so "chest pain, is this an emergency?" gets the 911 answer.
var topicKeywords = []struct {
	topic Topic
	words []string
}{
	{TopicEmergency, []string{"emergency", "urgent", "911", "serious"}},
	{TopicSymptoms, []string{"symptom", "feel", "pain", "ache", "hurt"}},
	{TopicMedication, []string{"medication", "medicine", "drug", "prescription"}},
}

var fallbackAnswers = map[Topic]string{
	TopicEmergency: "If this is a medical emergency, please call 911 or go to your nearest emergency room immediately. " +
		"For urgent but non-emergency concerns, contact your healthcare provider or an urgent care center.",
	TopicSymptoms: "I understand you're asking about symptoms. While I'd love to help with more detailed information, " +
		"I'm currently running in limited mode. For any health concerns, please consult with a healthcare " +
		"professional who can provide proper evaluation and guidance.",
	TopicMedication: "I see you're asking about medications. For safety reasons and because I'm in limited mode, " +
		"please consult with your doctor or pharmacist for accurate information about medications, " +
		"dosages, and potential interactions.",
	TopicGeneral: "Thank you for your healthcare question. I'm currently running in limited mode and cannot provide " +
		"detailed medical information. Please consult with a qualified healthcare professional for " +
		"accurate medical advice and information.",
}

// ClassifyTopic picks the fallback topic for query
func ClassifyTopic(query string) Topic {
	lower := strings.ToLower(query)
	for _, tk := range topicKeywords {
		for _, w := range tk.words {
			if strings.Contains(lower, w) {
				return tk.topic
			}
		}
	}
	return TopicGeneral
}

// Fallback returns the canned answer for query. It depends only on the query text.
func Fallback(query string) string {
	return fallbackAnswers[ClassifyTopic(query)]
}
