package workflow

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mmdatafocus/reviews_backend/models"
)

const testReviewLink = "https://g.page/r/abc/review"

func TestRenderMessageFriendly(t *testing.T) {
	out := RenderMessage(models.ToneFriendly, "", "Jordan Avery", "Blue Bottle", testReviewLink)
	if !strings.Contains(out, "Jordan") {
		t.Fatalf("expected first name in message: %q", out)
	}
	if strings.Contains(out, "Avery") {
		t.Fatalf("expected only the first name: %q", out)
	}
	if !strings.Contains(out, "Blue Bottle") || !strings.Contains(out, testReviewLink) {
		t.Fatalf("expected business name and link: %q", out)
	}
}

func TestRenderMessageUnknownToneFallsBackToFriendly(t *testing.T) {
	friendly := RenderMessage(models.ToneFriendly, "", "Jordan", "Blue Bottle", testReviewLink)
	unknown := RenderMessage(models.MessageTone("SARCASTIC"), "", "Jordan", "Blue Bottle", testReviewLink)
	if friendly != unknown {
		t.Fatalf("unknown tone should render the friendly template:\n%q\n%q", friendly, unknown)
	}
}

func TestRenderMessageEmptyNameUsesFallbackGreeting(t *testing.T) {
	out := RenderMessage(models.ToneFriendly, "", "", "Blue Bottle", testReviewLink)
	if !strings.Contains(out, "Hi there!") {
		t.Fatalf("expected neutral greeting for empty name: %q", out)
	}
}

func TestRenderMessageTonesDiffer(t *testing.T) {
	friendly := RenderMessage(models.ToneFriendly, "", "Jordan", "Blue Bottle", testReviewLink)
	professional := RenderMessage(models.ToneProfessional, "", "Jordan", "Blue Bottle", testReviewLink)
	grateful := RenderMessage(models.ToneGrateful, "", "Jordan", "Blue Bottle", testReviewLink)
	if friendly == professional || friendly == grateful || professional == grateful {
		t.Fatalf("tones must produce distinct wording")
	}
	for _, out := range []string{friendly, professional, grateful} {
		if !strings.Contains(out, testReviewLink) {
			t.Fatalf("every tone must include the review link: %q", out)
		}
	}
}

func TestRenderMessageCustomTemplate(t *testing.T) {
	template := "Hey {Customer_Name}, thanks for visiting {BUSINESS_NAME}! Review us: {review_link}"
	out := RenderMessage(models.ToneCustom, template, "Jordan Avery", "Blue Bottle", testReviewLink)
	want := "Hey Jordan, thanks for visiting Blue Bottle! Review us: " + testReviewLink
	if out != want {
		t.Fatalf("custom render mismatch:\n got %q\nwant %q", out, want)
	}
}

func TestRenderMessageCustomTemplateAppendsMissingLink(t *testing.T) {
	template := "Thanks for visiting {business_name}!"
	out := RenderMessage(models.ToneCustom, template, "Jordan", "Blue Bottle", testReviewLink)
	if !strings.HasSuffix(out, " "+testReviewLink) {
		t.Fatalf("expected link appended as suffix: %q", out)
	}
}

func TestRenderMessageCustomEmptyTemplateFallsBack(t *testing.T) {
	custom := RenderMessage(models.ToneCustom, "   ", "Jordan", "Blue Bottle", testReviewLink)
	friendly := RenderMessage(models.ToneFriendly, "", "Jordan", "Blue Bottle", testReviewLink)
	if custom != friendly {
		t.Fatalf("empty custom template should fall back to friendly:\n%q\n%q", custom, friendly)
	}
}

func TestReplaceFoldMultipleOccurrences(t *testing.T) {
	out, replaced := replaceFold("{x} and {X} and {x}", "{x}", "y")
	if !replaced || out != "y and y and y" {
		t.Fatalf("got %q replaced=%v", out, replaced)
	}
}

func TestReplaceFoldMultiByteRunesKeepOffsets(t *testing.T) {
	// 'İ' (U+0130) shrinks under ToLower; a match after it must still land on
	// the placeholder's real byte position.
	prefix := strings.Repeat("İ", 10)
	out, replaced := replaceFold(prefix+"{review_link}", "{review_link}", testReviewLink)
	if !replaced {
		t.Fatal("placeholder after a multi-byte prefix must be replaced")
	}
	if out != prefix+testReviewLink {
		t.Fatalf("got %q", out)
	}
	if !utf8.ValidString(out) {
		t.Fatalf("output is not valid UTF-8: %q", out)
	}
}

func TestRenderMessageCustomTemplateMultiByteText(t *testing.T) {
	template := strings.Repeat("İ", 20) + "{review_link}"
	out := RenderMessage(models.ToneCustom, template, "Jordan", "Blue Bottle", testReviewLink)
	if !utf8.ValidString(out) {
		t.Fatalf("rendered message is not valid UTF-8: %q", out)
	}
	if strings.Contains(out, PlaceholderReviewLink) {
		t.Fatalf("placeholder must not survive rendering: %q", out)
	}
	if !strings.Contains(out, testReviewLink) {
		t.Fatalf("rendered message must carry the review link: %q", out)
	}
}
