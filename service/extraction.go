package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AnTengye/dealflow/model"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const maxPromptContent = 60000

const amlSystemPrompt = "You are a compliance analyst reviewing anti-money-laundering documentation for an investment firm. You must output your response as a single valid JSON object."

const amlUserPrompt = `Extract the following fields from the AML document below. Use null when a field is not present.

- "entity_name": legal name of the person or entity
- "jurisdiction": country of incorporation or residence
- "source_of_funds": declared origin of the invested money
- "pep_status": true if the subject is a politically exposed person
- "sanctions_hits": list of sanctions list matches mentioned
- "risk_rating": one of "low", "medium", "high"
- "issues": list of anything a reviewer should look at

Do not include any text before or after the JSON object.`

const kycSystemPrompt = "You are a KYC analyst verifying investor identity documents. You must output your response as a single valid JSON object."

const kycUserPrompt = `Extract the following fields from the KYC document below. Use null when a field is not present.

- "full_name"
- "date_of_birth": ISO 8601 date
- "nationality"
- "document_number"
- "document_expiry": ISO 8601 date
- "address"
- "issues": list of inconsistencies, expired documents or missing pages

Do not include any text before or after the JSON object.`

const genericSystemPrompt = "You are a document analyst at an investment firm. You must output your response as a single valid JSON object."

const genericUserPrompt = `Summarize the document below as a JSON object with the keys "title", "parties", "key_terms" (list) and "summary".

Do not include any text before or after the JSON object.`

// ExtractionPrompt returns the (prompt, system prompt) pair for a document.
// content is the raw file; binary files are referenced by url instead.
func ExtractionPrompt(doc model.Document, content []byte, url string) (string, string) {
	system, instructions := genericSystemPrompt, genericUserPrompt
	switch doc.FileType {
	case model.FileAML:
		system, instructions = amlSystemPrompt, amlUserPrompt
	case model.FileKYC:
		system, instructions = kycSystemPrompt, kycUserPrompt
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	fmt.Fprintf(&sb, "\n\nDocument: %s (%s", doc.Filename, doc.FileType)
	if doc.PageCount > 0 {
		fmt.Fprintf(&sb, ", %d pages", doc.PageCount)
	}
	sb.WriteString(")\n\n")

	switch {
	case len(content) > 0 && utf8.Valid(content):
		text := string(content)
		if len(text) > maxPromptContent {
			cut := maxPromptContent
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		sb.WriteString(text)
	case url != "":
		fmt.Fprintf(&sb, "The file is available at: %s", url)
	default:
		sb.WriteString("The file content is binary and not available inline. Extract what you can from the file name and type.")
	}

	return sb.String(), system
}

// ParseExtraction turns a model answer into JSON. Code fences are stripped;
// anything that is still not a JSON object is kept verbatim under "raw".
func ParseExtraction(text string) model.JSONB {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err == nil {
		return model.JSONB(cleaned)
	}

	raw, _ := json.Marshal(map[string]string{"raw": text})
	return model.JSONB(raw)
}

// pdfPageCount reads the page count of a PDF
func pdfPageCount(data []byte) (int, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

func isPDF(contentType, filename string, data []byte) bool {
	if contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
