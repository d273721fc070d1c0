package workflow

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/reviews_backend/models"
)

const (
	PlaceholderCustomerName = "{customer_name}"
	PlaceholderBusinessName = "{business_name}"
	PlaceholderReviewLink   = "{review_link}"
)

// RenderMessage builds the outbound SMS body for the account's configured
// tone. Unknown tones and a CUSTOM tone with an empty template both fall back
// to the friendly wording; a bad settings row must never block a send.
func RenderMessage(tone models.MessageTone, customTemplate, customerName, businessName, reviewLink string) string {
	name := greetingName(customerName)

	switch tone {
	case models.ToneCustom:
		if strings.TrimSpace(customTemplate) != "" {
			return renderCustomTemplate(customTemplate, customerName, businessName, reviewLink)
		}
	case models.ToneProfessional:
		return fmt.Sprintf("Thank you for choosing %s. We would appreciate a moment of your time for a review: %s", businessName, reviewLink)
	case models.ToneGrateful:
		return fmt.Sprintf("%s, thank you so much for visiting %s! It would mean a lot to us if you shared your experience: %s", name, businessName, reviewLink)
	}

	return fmt.Sprintf("Hi %s! Thanks for stopping by %s. We'd love to hear how we did: %s", name, businessName, reviewLink)
}

// renderCustomTemplate substitutes placeholders case-insensitively. If the
// template never referenced the review link it is appended as a suffix, so a
// merchant typo can't produce a message with no link in it.
func renderCustomTemplate(template, customerName, businessName, reviewLink string) string {
	out := template
	out, _ = replaceFold(out, PlaceholderCustomerName, greetingName(customerName))
	out, _ = replaceFold(out, PlaceholderBusinessName, businessName)
	out, linked := replaceFold(out, PlaceholderReviewLink, reviewLink)
	if !linked {
		out = strings.TrimRight(out, " ") + " " + reviewLink
	}
	return out
}

// replaceFold replaces every case-insensitive occurrence of placeholder and
// reports whether at least one replacement happened. Placeholders are ASCII,
// so a fold match always spans exactly len(placeholder) bytes of s; indices
// are never taken from a case-mapped copy, whose byte offsets can drift for
// runes like U+0130.
func replaceFold(s, placeholder, value string) (string, bool) {
	if placeholder == "" {
		return s, false
	}

	var b strings.Builder
	replaced := false
	for i := 0; i < len(s); {
		if len(s)-i >= len(placeholder) && strings.EqualFold(s[i:i+len(placeholder)], placeholder) {
			b.WriteString(value)
			i += len(placeholder)
			replaced = true
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	if !replaced {
		return s, false
	}
	return b.String(), true
}

// greetingName gives the first name, or a neutral fallback when the provider
// sent no usable name.
func greetingName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
