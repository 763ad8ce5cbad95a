package mcpserver

// KnowledgeFormat describes the knowledge-base file format so that MCP
// clients can draft new entries the loader accepts.
const KnowledgeFormat = `# Lorekeeper Knowledge Format

Every file in the knowledge directory is a JSON array of documents.

## Document

` + "```" + `json
{
  "id": "death-penalty",
  "title": "What happens when I die?",
  "content": "You drop your corpse and lose a share of experience.",
  "category": "faq",
  "tags": ["death", "corpse"],
  "source_url": "https://example.com/faq#death",
  "priority": "high",
  "last_updated": "2025-01-15"
}
` + "```" + `

## Rules

1. **id**, **title** and **content** are required. Records missing one are skipped.
2. **category** is one of faq, lore, philosophy, guides or alpha. Defaults to faq.
3. **priority** is high, medium or low. Anything else becomes medium.
4. **tags** is a list of lowercase words; it may be omitted.
5. **source_url** is optional. When present, answers cite it as a link.
6. **last_updated** is a plain date (YYYY-MM-DD) or an RFC 3339 timestamp.
7. Files are UTF-8. Files that are not JSON arrays are ignored.
8. ` + "`" + `forum_faq.json` + "`" + ` is rebuilt by the refreshfaq command; do not edit it by hand.
`
