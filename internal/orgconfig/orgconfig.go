// Package orgconfig loads and models the per-organisation configuration:
// localisations, prompt template URLs, generator model choice, validator
// settings, and TTS voice models. Configurations live in a DynamoDB table and
// are cached in-process with a short TTL.
package orgconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no configuration exists for an org/config pair.
var ErrNotFound = errors.New("orgconfig: configuration not found")

// Loader resolves an organisation configuration.
type Loader interface {
	Load(ctx context.Context, orgID, configID string) (*Config, error)
}

// Config is one organisation's configuration document.
type Config struct {
	KMID                   string         `json:"kmId"`
	ConfigID               string         `json:"configId"`
	DefaultPrimaryLanguage string         `json:"defaultPrimaryLanguage"`
	Localization           []Localization `json:"localization"`
	Gemini                 *Gemini        `json:"gemini,omitempty"`
	OpenAI                 *OpenAI        `json:"openai,omitempty"`
	Groq                   *Groq          `json:"groq,omitempty"`
	Generator              *Generator     `json:"generator,omitempty"`
	TTS                    *TTS           `json:"tts,omitempty"`
}

// Localization is the per-language bundle of prompts and model choices.
type Localization struct {
	Language     string `json:"language"`
	AssistantID  string `json:"assistantId"`
	AssistantKey string `json:"assistantKey"`

	// GeneratorModel overrides the org-wide generator model for this
	// language. A "groq/" prefix routes to Groq.
	GeneratorModel string `json:"generatorModel,omitempty"`

	// Prompt template URLs, resolved through the template fetch cache.
	SystemPromptURL                      string `json:"systemPrompt"`
	AffirmationPromptURL                 string `json:"affirmationPrompt"`
	GeneratorFormatTextPromptURL         string `json:"generatorFormatTextPromptUrl,omitempty"`
	ValidatorSystemPromptTemplateURL     string `json:"validatorSystemPromptTemplateUrl,omitempty"`
	ValidatorTranscriptPromptTemplateURL string `json:"validatorTranscriptPromptTemplateUrl,omitempty"`
}

// Gemini holds the validator backend settings.
type Gemini struct {
	Key              string `json:"key"`
	ValidatorEnabled bool   `json:"validatorEnabled"`
}

// OpenAI holds the OpenAI-compatible generator credentials.
type OpenAI struct {
	APIKey string `json:"apiKey"`
}

// Groq holds the Groq generator credentials.
type Groq struct {
	APIKey string `json:"apiKey"`
}

// Generator holds org-wide generation settings.
type Generator struct {
	Model string `json:"model"`
}

// TTS holds the speech-synthesis settings.
type TTS struct {
	Azure *AzureTTS `json:"azure,omitempty"`
}

// AzureTTS is the Azure speech subscription plus its voice models.
type AzureTTS struct {
	SubscriptionKey string       `json:"subscriptionKey"`
	Region          string       `json:"region,omitempty"`
	LexiconURL      string       `json:"lexiconURL,omitempty"`
	PhonemeURL      string       `json:"phonemeUrl,omitempty"`
	Models          []VoiceModel `json:"models,omitempty"`
}

// VoiceModel is one configured vendor voice.
type VoiceModel struct {
	Language string `json:"language"`
	Name     string `json:"name"`
	Pitch    string `json:"pitch,omitempty"`

	// PhonemeURL points at a per-voice phoneme table, merged over the
	// org-wide one.
	PhonemeURL string `json:"phonemeUrl,omitempty"`
}

// Localization returns the bundle for language, falling back to
// DefaultPrimaryLanguage. Matching is case-insensitive on the full tag.
func (c *Config) Localisation(language string) (Localization, error) {
	if loc, ok := c.findLocalization(language); ok {
		return loc, nil
	}
	if loc, ok := c.findLocalization(c.DefaultPrimaryLanguage); ok {
		return loc, nil
	}
	return Localization{}, fmt.Errorf("orgconfig: no localisation for %q and no usable default", language)
}

func (c *Config) findLocalization(language string) (Localization, bool) {
	if language == "" {
		return Localization{}, false
	}
	for _, loc := range c.Localization {
		if strings.EqualFold(loc.Language, language) {
			return loc, true
		}
	}
	return Localization{}, false
}

// GeneratorModel returns the model for a localisation, preferring the
// per-language override, then the org-wide setting, then fallback.
func (c *Config) GeneratorModel(loc Localization, fallback string) string {
	if loc.GeneratorModel != "" {
		return loc.GeneratorModel
	}
	if c.Generator != nil && c.Generator.Model != "" {
		return c.Generator.Model
	}
	return fallback
}

// TTSEnabled reports whether the org has a usable speech subscription.
func (c *Config) TTSEnabled() bool {
	return c.TTS != nil && c.TTS.Azure != nil && c.TTS.Azure.SubscriptionKey != ""
}

// VoiceModel returns the voice for language, falling back to the default
// primary language's voice. The second return is false when neither exists.
func (c *Config) VoiceModel(language string) (VoiceModel, bool) {
	if !c.TTSEnabled() {
		return VoiceModel{}, false
	}
	if vm, ok := c.findVoice(language); ok {
		return vm, true
	}
	return c.findVoice(c.DefaultPrimaryLanguage)
}

func (c *Config) findVoice(language string) (VoiceModel, bool) {
	for _, vm := range c.TTS.Azure.Models {
		if strings.EqualFold(vm.Language, language) {
			return vm, true
		}
	}
	return VoiceModel{}, false
}
