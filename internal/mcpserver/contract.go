package mcpserver

// OrderingContract describes how ordered link groups behave, for LLM
// consumers that create, move or remove links.
const OrderingContract = `# Linkorder Ordering Contract

A **group** is every live link sharing one source entity and one link type.
When the source entity's type declares the link type as ` + "`" + `array: true, ordered: true` + "`" + `,
the group is **ordered**: its links carry the indexes 0..N-1 with no gaps
and no duplicates, where N is the number of live links in the group.

## Operations

- ` + "`" + `create_link` + "`" + ` without ` + "`" + `index` + "`" + ` appends at N. With ` + "`" + `index` + "`" + ` in 0..N the new link
  takes that slot and every sibling at or after it moves up by one.
  Any other index is rejected as out of range and nothing changes.
- ` + "`" + `move_link` + "`" + ` takes an index in 0..N-1. Moving down shifts the siblings in
  between up by one; moving up shifts them down by one. Moving to the
  current index changes nothing.
- ` + "`" + `remove_link` + "`" + ` archives the link and closes the gap: every sibling after it
  moves down by one. Removing a link twice fails with not found.

Every mutation returns the group as it is after the change, sorted by index.
Unordered groups never carry indexes; passing one is rejected.
A group that is not allowed to be an array holds at most one live link.

## Seed documents

` + "`" + `import_seed` + "`" + ` accepts a YAML document with any of four sections:

` + "```" + `yaml
linkTypes:
  - id: has-song
    title: Has song
entityTypes:
  - id: playlist
    outgoingLinks:
      - {linkType: has-song, array: true, ordered: true}
  - id: song
entities:
  - key: road-trip          # stable seed key, referenced by links
    type: playlist
    properties: {title: Road trip}
  - {key: song-a, type: song, properties: {title: Song A}}
  - {key: song-b, type: song, properties: {title: Song B}}
links:
  - {source: road-trip, linkType: has-song, target: song-a}
  - {source: road-trip, linkType: has-song, target: song-b, index: 0}
` + "```" + `

Links are applied in document order with the same rules as ` + "`" + `create_link` + "`" + `.
A link whose source, type and target already exist is skipped, so a
document can be imported again without duplicating links.
`
