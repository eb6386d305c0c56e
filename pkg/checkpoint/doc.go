// Package checkpoint keeps a journal of the current or last collection run.
//
// The journal records the run id, the artifact path, counts of processed,
// collected and skipped entities, and why each skip happened. It is rewritten
// atomically after every entity so an interrupted run can be inspected
// afterwards. It is not a resume list: every run re-fetches all entities.
//
// Journals live in the XDG data directory:
//   - Linux: ~/.local/share/igbenford/runs/
//   - macOS: ~/Library/Application Support/igbenford/runs/
//   - Windows: %LOCALAPPDATA%/igbenford/runs/
package checkpoint
