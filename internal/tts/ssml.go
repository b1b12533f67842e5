package tts

import (
	"html"
	"strings"

	"github.com/AmityCo/answercore/internal/orgconfig"
)

const ssmlNamespace = "http://www.w3.org/2001/10/synthesis"

// BuildSSML wraps transformed text in a synthesis document for the given
// voice. The text argument must already be markup-safe, either the output of
// [Transformer.Apply] or escaped by the caller; it is embedded verbatim so
// phoneme and sub elements survive. Identical inputs always produce an
// identical document, which keeps audio cache keys stable.
func BuildSSML(text, language string, voice orgconfig.VoiceModel) string {
	var b strings.Builder
	b.WriteString(`<speak version="1.0" xmlns="`)
	b.WriteString(ssmlNamespace)
	b.WriteString(`" xml:lang="`)
	b.WriteString(html.EscapeString(language))
	b.WriteString(`"><voice name="`)
	b.WriteString(html.EscapeString(voice.Name))
	b.WriteString(`">`)

	if voice.Pitch != "" {
		b.WriteString(`<prosody pitch="`)
		b.WriteString(html.EscapeString(voice.Pitch))
		b.WriteString(`" rate="medium">`)
		b.WriteString(text)
		b.WriteString(`</prosody>`)
	} else {
		b.WriteString(text)
	}

	b.WriteString(`</voice></speak>`)
	return b.String()
}
