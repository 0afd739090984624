package llm

import (
	"strings"
)

// SystemPrompt is sent as the system instruction of every structuring call
const SystemPrompt = "You are a helpful assistant that extracts structured JSON."

const promptHeader = `
You are an expert data extraction assistant. Your task is to extract structured demographic data
from the provided text, focusing on marriage and divorce trends.

You MUST return a JSON object where the top-level keys are the COUNTRY NAME, and the values are
dictionaries where the keys are the YEAR (as a string) and the values are the data records.

Data structure template:
{
  "United States": {
    "2020": {
      "country": "United States",
      "year": 2020,
      "marriage_rate": 6.1,
      "divorce_rate": 2.7,
      "extracted_at": 1672531199.0,
      "updated_at": 1672531199.0
    }
  }
}

For all rate and age fields (e.g., marriage_rate, divorce_rate, extracted_at), you MUST
ONLY use floating point numbers, integers, or null. DO NOT use descriptive strings.

Full Schema:
- country: The country name (must be explicitly included in the inner object).
- year: The year as an integer (must be explicitly included in the inner object).
- marriage_rate: Marriages per 1,000 people (float or null).
- divorce_rate: Divorces per 1,000 people (float or null).
- extracted_at: Timestamp of data extraction (UNIX epoch, float or null).
- updated_at: Timestamp of last data update (UNIX epoch, float or null).

Text to analyze:
---
`

// BuildPrompt embeds the cleaned page text into the extraction instructions
func BuildPrompt(text string) string {
	var b strings.Builder
	b.Grow(len(promptHeader) + len(text) + 8)
	b.WriteString(promptHeader)
	b.WriteString(text)
	b.WriteString("\n---\n")
	return b.String()
}
