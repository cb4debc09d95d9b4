// Package markdown repairs and renders assistant answers.
//
// # Table Repair
//
// Answers frequently carry GFM tables that arrive malformed: squeezed onto a
// single line, split one cell per line, or glued to the preceding sentence.
// Each transform below is a pure, idempotent function over the fully
// assembled answer:
//
//   - NormalizeRows: detaches rows from prose and opens tables with a blank line
//   - FixBrokenTables: rebuilds one-cell-per-line tables
//   - FixCompactTables: expands single-line tables and drops stray dash rows
//   - ReassembleStream: joins raw "data:" frames into one text
//
// Repair chains the first three in the order they are safe to compose.
// Candidates with fewer than three cells are never touched, column counts
// are always derived from the input, and ragged trailing rows are kept.
//
// # Rendering
//
// RenderHTML converts a repaired answer to HTML with goldmark's GFM
// extension; TerminalRenderer renders it for a terminal through glamour.
package markdown
