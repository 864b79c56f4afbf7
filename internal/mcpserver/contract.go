package mcpserver

// TreeRulesContract describes the structural rules every tree edit obeys.
// LLM consumers should read it before moving or creating items.
const TreeRulesContract = `# Arbor Tree Rules

The tree holds two kinds of items: **folders** and **notes**. Every item has
exactly one parent. An empty parent id means the root level.

## Rules

1. Only folders have children. A note can never be a parent.
2. Ids are opaque strings assigned by the server. Use the ids returned by
   ` + "`" + `get_tree` + "`" + ` or ` + "`" + `create_item` + "`" + `, never names.
3. **Move** onto a folder appends the item as that folder's last child.
   Move onto a note places the item right after that note, under the
   note's parent.
4. An item cannot be moved onto itself, and a folder cannot be moved into
   any of its own descendants.
5. **Promote** moves an item up to its grandparent. Folders may be
   promoted to the root level. Notes must stay inside a folder, so a note
   whose parent sits at the root level cannot be promoted.
6. **Delete** removes the item and everything beneath it. There is no undo.
7. Names are trimmed, must not be empty and are at most 200 characters.
8. Only one change is applied at a time. A call that overlaps another edit
   fails with "another change is still in flight"; retry it.

## Example

` + "```" + `
Projects/            (folder, parent "")
  plan               (note, parent Projects)
  Archive/           (folder, parent Projects)
Inbox/               (folder, parent "")
` + "```" + `

- move_item(plan, target=Inbox) puts plan last inside Inbox.
- promote_item(Archive) puts Archive at the root level.
- move_item(Projects, target=Archive) fails: Archive is inside Projects.
`
