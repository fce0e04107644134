package evaluator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// #region bank
var defaultTexts = []string{
	"Assess whether the following claim is true.",
	"Estimate the probability that this statement is factually correct.",
	"How likely is it that the claim below is true?",
	"Evaluate the truth of the following assertion.",
	"Judge the accuracy of this claim using your best knowledge.",
	"Consider the statement below and estimate how probable it is that it holds.",
	"Determine the likelihood that the following is accurate.",
	"Rate how confident you are that this claim is correct.",
	"Weigh the available evidence and estimate whether the claim is true.",
	"Provide your probability that the following proposition is true.",
	"Is the following statement true? Express your belief as a probability.",
	"Estimate the chance that the claim below reflects reality.",
	"Analyse the following claim and give the probability it is correct.",
	"From what is generally known, how likely is this statement to be true?",
	"Give a calibrated probability for the truth of the following claim.",
	"Examine the claim below and state the probability that it is factual.",
}

// DefaultBank returns the 16 built-in templates in fixed order. A fresh
// slice is returned on every call.
func DefaultBank() []Template {
	bank := make([]Template, len(defaultTexts))
	for i, text := range defaultTexts {
		bank[i] = Template{ID: i, Text: text}
	}
	return bank
}

// #endregion bank

// #region compose
const schemaInstruction = `Respond with a single JSON object of the form {"prob_true": <number strictly between 0 and 1>} and nothing else.`

// ComposePrompt builds the full prompt text sent to the model.
func ComposePrompt(t Template, claim string) string {
	var b strings.Builder
	b.WriteString(t.Text)
	b.WriteString("\n\nClaim: ")
	b.WriteString(claim)
	b.WriteString("\n\n")
	b.WriteString(schemaInstruction)
	return b.String()
}

// Fingerprint is the hex SHA-256 of a composed prompt.
func Fingerprint(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// TemplateFingerprint is Fingerprint(ComposePrompt(t, claim)).
func TemplateFingerprint(t Template, claim string) string {
	return Fingerprint(ComposePrompt(t, claim))
}

// #endregion compose
