package chat

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

type Entry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// SampleQuestions is the fixed list surfaced to the presentation layer for
// one-click submission.
func SampleQuestions() []string {
	return []string{
		"How many students went to Canada?",
		"Which country has the most students?",
		"Show me migration trends by year",
		"What are the top 5 destinations?",
		"How many students from India?",
		"What is the average age of migrating students?",
		"Which field of study is most popular?",
	}
}
