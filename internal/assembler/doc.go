// Package assembler packs ranked evidence and recent dialogue into a bounded
// context window.
//
// Token cost is estimated as len(text)/CharsPerToken over the rendered text,
// separators included, so TotalTokens never exceeds the requested maximum.
package assembler
