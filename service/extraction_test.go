package service

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/AnTengye/dealflow/model"
)

func TestParseExtraction(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		key    string
		want   any
	}{
		{"plain json", `{"risk_rating": "low"}`, "risk_rating", "low"},
		{"fenced json", "```json\n{\"risk_rating\": \"high\"}\n```", "risk_rating", "high"},
		{"bare fence", "```\n{\"pep_status\": true}\n```", "pep_status", true},
		{"prose", "I could not read this file.", "raw", "I could not read this file."},
		{"json array", `[1, 2]`, "raw", "[1, 2]"},
		{"empty", "", "raw", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := ParseExtraction(tt.answer)
			var obj map[string]any
			if err := json.Unmarshal(data, &obj); err != nil {
				t.Fatalf("Expected a JSON object, got %s", data)
			}
			if obj[tt.key] != tt.want {
				t.Errorf("Expected %s=%v, got %v", tt.key, tt.want, obj[tt.key])
			}
		})
	}
}

func TestExtractionPromptByFileType(t *testing.T) {
	tests := []struct {
		fileType model.FileType
		system   string
		marker   string
	}{
		{model.FileAML, amlSystemPrompt, "source_of_funds"},
		{model.FileKYC, kycSystemPrompt, "date_of_birth"},
		{model.FileContract, genericSystemPrompt, "key_terms"},
	}

	for _, tt := range tests {
		t.Run(string(tt.fileType), func(t *testing.T) {
			doc := model.Document{Filename: "f.txt", FileType: tt.fileType}
			prompt, system := ExtractionPrompt(doc, []byte("hello"), "")
			if system != tt.system {
				t.Errorf("Unexpected system prompt for %s", tt.fileType)
			}
			if !strings.Contains(prompt, tt.marker) {
				t.Errorf("Expected %q in prompt", tt.marker)
			}
			if !strings.Contains(prompt, "hello") {
				t.Error("Expected content in prompt")
			}
		})
	}
}

func TestExtractionPromptBinaryContent(t *testing.T) {
	doc := model.Document{Filename: "scan.pdf", FileType: model.FileKYC, PageCount: 3}
	binary := []byte{0xff, 0xfe, 0x00, 0x81}

	prompt, _ := ExtractionPrompt(doc, binary, "https://files.example.com/scan.pdf?sig=1")
	if !strings.Contains(prompt, "https://files.example.com/scan.pdf?sig=1") {
		t.Error("Expected signed url in prompt")
	}
	if !strings.Contains(prompt, "3 pages") {
		t.Error("Expected page count in prompt")
	}

	prompt, _ = ExtractionPrompt(doc, binary, "")
	if !strings.Contains(prompt, "binary") {
		t.Error("Expected binary notice without url")
	}
}

func TestExtractionPromptTruncates(t *testing.T) {
	doc := model.Document{Filename: "big.txt", FileType: model.FileAML}
	content := strings.Repeat("a", maxPromptContent+500)

	prompt, _ := ExtractionPrompt(doc, []byte(content), "")
	if strings.Count(prompt, "a") > maxPromptContent+len(amlUserPrompt) {
		t.Error("Expected content to be truncated")
	}
}

func TestExtractionPromptTruncatesOnRuneBoundary(t *testing.T) {
	doc := model.Document{Filename: "kyc.txt", FileType: model.FileKYC}
	content := strings.Repeat("a", maxPromptContent-1) + "é" + "tail"

	prompt, _ := ExtractionPrompt(doc, []byte(content), "")
	if !utf8.ValidString(prompt) {
		t.Fatal("Expected prompt to stay valid UTF-8")
	}
	if strings.Contains(prompt, "é") || strings.Contains(prompt, "tail") {
		t.Error("Expected the split rune and everything after it to be dropped")
	}
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		contentType string
		filename    string
		data        string
		want        bool
	}{
		{"application/pdf", "x", "", true},
		{"", "Contract.PDF", "", true},
		{"application/octet-stream", "upload.bin", "%PDF-1.7\n", true},
		{"text/plain", "notes.txt", "hello", false},
	}
	for _, tt := range tests {
		if got := isPDF(tt.contentType, tt.filename, []byte(tt.data)); got != tt.want {
			t.Errorf("isPDF(%q, %q): expected %v, got %v", tt.contentType, tt.filename, tt.want, got)
		}
	}
}

func TestPDFPageCountRejectsGarbage(t *testing.T) {
	if _, err := pdfPageCount([]byte("%PDF-1.4 not really a pdf")); err == nil {
		t.Error("Expected error for malformed pdf")
	}
}
