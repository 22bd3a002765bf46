package mcpserver

// CitationFormatContract describes the canonical citation label format
// for scripture passage ranges, as rendered by the citation filler.
const CitationFormatContract = `# Citation Label Contract

Every passage stored in the notes database is an inclusive verse range.
Its citation label is rendered from the range endpoints resolved against
the scripture corpus, collapsing shared components from the right. The
range separator is an en dash (U+2013), never a hyphen.

## Forms

| Range shape            | Label                  |
|------------------------|------------------------|
| single verse           | ` + "`Alma 32:21`" + `           |
| same chapter           | ` + "`Alma 32:21–23`" + `        |
| same book              | ` + "`Alma 32:21–33:2`" + `      |
| cross-book             | ` + "`Alma 32:21–Ether 3:4`" + ` |

## Rules

1. The start reference is always fully qualified: book, chapter, verse.
2. The end reference drops the book when it matches the start, and also
   drops the chapter when both book and chapter match.
3. A range whose endpoints are the same verse renders with no range part.
4. Chapter identifiers are text, not numbers: front matter imports as
   chapters like ` + "`Introduction`" + `, and labels carry them verbatim.
5. Labels are derived data. The verse ids are authoritative; a label is
   only regenerated by the citation filler, never edited by hand.
6. Passages with a dangling endpoint (a verse id missing from the
   corpus) keep a null label until the reference is repaired.
`
