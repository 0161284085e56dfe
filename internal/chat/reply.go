// Package chat produces canned replies for the text-only chat path.
package chat

import "strings"

// Category names the rule that produced a reply.
type Category string

const (
	CategoryGreeting  Category = "greeting"
	CategoryWellBeing Category = "well-being"
	CategoryHelp      Category = "help"
	CategoryGratitude Category = "gratitude"
	CategoryFarewell  Category = "farewell"
	CategoryHealth    Category = "health"
	CategoryChild     Category = "child"
	CategoryShort     Category = "short"
	CategoryFallback  Category = "fallback"
)

// shortLimit is the trimmed length below which an unmatched message gets the
// short-message reply.
const shortLimit = 10

type rule struct {
	category Category
	keywords []string
	reply    string
}

// rules are checked in order; the first keyword found anywhere in the
// lowercased message wins. Keywords are plain substrings, so short or
// ambiguous words are avoided.
var rules = []rule{
	{
		category: CategoryGreeting,
		keywords: []string{"hello", "hiya", "howdy", "greetings", "good morning", "good afternoon", "good evening", "hi there", "hey there"},
		reply:    "Hello! It's good to hear from you. What would you like to talk about today?",
	},
	{
		category: CategoryWellBeing,
		keywords: []string{"how are you", "how are things", "how is it going", "how's it going", "how do you do", "how have you been"},
		reply:    "I'm doing well, thank you for asking. How are you feeling today?",
	},
	{
		category: CategoryHelp,
		keywords: []string{"help", "assist", "support", "stuck", "confused", "what can you do"},
		reply:    "I'm here to help. Tell me a little more about what you need and we'll work through it together.",
	},
	{
		category: CategoryGratitude,
		keywords: []string{"thank", "thx", "appreciate", "grateful"},
		reply:    "You're very welcome. I'm glad I could help.",
	},
	{
		category: CategoryFarewell,
		keywords: []string{"bye", "farewell", "see you", "see ya", "good night", "take care"},
		reply:    "Goodbye for now. Take care, and come back any time you want to talk.",
	},
	{
		category: CategoryHealth,
		keywords: []string{"health", "sick", "pain", "hurt", "doctor", "medicine", "medication", "fever", "tired", "sleep"},
		reply:    "I'm sorry you're dealing with that. I can't give medical advice, so please check with a doctor or nurse if you're worried. Would it help to talk it through?",
	},
	{
		category: CategoryChild,
		keywords: []string{"child", "kid", "baby", "toddler", "daughter", "my son", "school"},
		reply:    "Kids keep life interesting. Tell me more about what's going on with your little one.",
	},
}

const (
	shortReply    = "I'd love to hear more. Could you tell me a bit more about that?"
	fallbackReply = "That's interesting. I'm a simple text assistant right now, but for a richer conversation try starting a voice session."
)

// Classify returns the category of the first rule with a keyword contained
// in message, ignoring case.
func Classify(message string) Category {
	text := strings.ToLower(message)
	for _, r := range rules {
		if containsAny(text, r.keywords) {
			return r.category
		}
	}
	if len([]rune(strings.TrimSpace(message))) < shortLimit {
		return CategoryShort
	}
	return CategoryFallback
}

// Reply returns the canned response for message.
func Reply(message string) string {
	return ReplyFor(Classify(message))
}

// ReplyFor returns the canned response for a category.
func ReplyFor(c Category) string {
	for _, r := range rules {
		if r.category == c {
			return r.reply
		}
	}
	if c == CategoryShort {
		return shortReply
	}
	return fallbackReply
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
