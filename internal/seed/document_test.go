package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const musicDoc = `
linkTypes:
  - id: has-song
    title: Has song
    pluralTitle: Has songs
entityTypes:
  - id: playlist
    outgoingLinks:
      - linkType: has-song
        array: true
        ordered: true
  - id: song
entities:
  - key: road-trip
    type: playlist
    properties:
      title: Road trip
  - key: song-a
    type: song
    properties: {title: A}
  - key: song-b
    type: song
    properties: {title: B}
links:
  - source: road-trip
    linkType: has-song
    target: song-a
  - source: road-trip
    linkType: has-song
    target: song-b
    index: 0
    properties:
      note: opener
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(musicDoc))
	require.NoError(t, err)

	require.Len(t, doc.LinkTypes, 1)
	assert.Equal(t, "Has songs", doc.LinkTypes[0].PluralTitle)

	require.Len(t, doc.EntityTypes, 2)
	rules := doc.EntityTypes[0].OutgoingLinks
	require.Len(t, rules, 1)
	assert.Equal(t, "has-song", rules[0].LinkTypeID)
	assert.True(t, rules[0].Array)
	assert.True(t, rules[0].Ordered)

	require.Len(t, doc.Entities, 3)
	assert.Equal(t, "Road trip", doc.Entities[0].Properties["title"])

	require.Len(t, doc.Links, 2)
	assert.Nil(t, doc.Links[0].Index)
	require.NotNil(t, doc.Links[1].Index)
	assert.Equal(t, 0, *doc.Links[1].Index)
	assert.Equal(t, "opener", doc.Links[1].Properties["note"])
}

func TestParse_Empty(t *testing.T) {
	doc, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Links)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "linkTypez: []\n",
		"missing id":     "linkTypes:\n  - title: x\n",
		"missing type":   "entities:\n  - key: a\n",
		"negative index": "links:\n  - {source: a, linkType: t, target: b, index: -1}\n",
		"missing target": "links:\n  - {source: a, linkType: t}\n",
		"not yaml":       "links: [\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}
